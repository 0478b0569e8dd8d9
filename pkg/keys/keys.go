// Package keys generates and derives the secp256k1 key pairs that identify
// users of the protocol. Keys pass between packages in their 64 character
// hex form, the same representation used on the wire.
package keys

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/candleworks/poolstr/pkg/hex"
)

// GeneratePrivateKey draws a uniformly distributed scalar on the secp256k1
// group order from the system entropy source.
func GeneratePrivateKey() (sk string, err error) {
	params := btcec.S256().Params()
	one := new(big.Int).SetInt64(1)

	// read extra bytes so the modular reduction bias is negligible
	b := make([]byte, params.BitSize/8+8)
	if _, err = io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("entropy source failed: %w", err)
	}

	k := new(big.Int).SetBytes(b)
	n := new(big.Int).Sub(params.N, one)
	k.Mod(k, n)
	k.Add(k, one)

	return fmt.Sprintf("%064x", k.Bytes()), nil
}

// GetPublicKey derives the x-only public key of a hex secret key.
func GetPublicKey(sk string) (pk string, err error) {
	var b []byte
	if b, err = hex.Dec(sk); err != nil {
		return
	}
	_, pub := btcec.PrivKeyFromBytes(b)
	return hex.Enc(schnorr.SerializePubKey(pub)), nil
}

// IsValid32ByteHex reports whether pk is a well formed lowercase hex
// encoding of 32 bytes, the form keys and event ids take on the wire.
func IsValid32ByteHex(pk string) bool {
	if strings.ToLower(pk) != pk {
		return false
	}
	dec, _ := hex.Dec(pk)
	return len(dec) == 32
}
