package keys

import (
	"fmt"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
)

// Identity is a secret key and the public key derived from it. The two
// fields are only ever created and stored together; the public key is
// always the curve derivation of the secret key.
type Identity struct {
	Sec string `json:"sec"`
	Pub string `json:"pub"`
}

// Generate creates a fresh identity.
func Generate() (id Identity, err error) {
	if id.Sec, err = GeneratePrivateKey(); err != nil {
		return
	}
	id.Pub, err = GetPublicKey(id.Sec)
	return
}

// FromSecretKey rebuilds an identity from a hex secret key, rederiving the
// public half.
func FromSecretKey(sk string) (id Identity, err error) {
	if !IsValid32ByteHex(sk) {
		err = fmt.Errorf("secret key is not 32 bytes of lowercase hex")
		return
	}
	id.Sec = sk
	id.Pub, err = GetPublicKey(sk)
	return
}

// Npub returns the bech32 form of the public key.
func (id Identity) Npub() (s string, err error) {
	return bech32encoding.PubKeyToNpub(id.Pub)
}

// Nsec returns the bech32 form of the secret key.
func (id Identity) Nsec() (s string, err error) {
	return bech32encoding.SecKeyToNsec(id.Sec)
}
