// Package bech32encoding maps between the hex form of keys and event ids
// used on the wire and their human readable bech32 forms (npub, nsec,
// note).
package bech32encoding

import (
	"fmt"

	"github.com/candleworks/poolstr/pkg/bech32"
	"github.com/candleworks/poolstr/pkg/hex"
)

const (
	// MinKeyStringLen is 56 because Bech32 needs 52 characters plus 4 for
	// the HRP, any string shorter than this cannot be a key or note.
	MinKeyStringLen = 56
	HexKeyLen       = 64
	SecHRP          = "nsec"
	PubHRP          = "npub"
	NoteHRP         = "note"
)

// ConvertForBech32 performs the bit expansion required for encoding into
// Bech32.
func ConvertForBech32(b8 []byte) (b5 []byte, err error) {
	return bech32.ConvertBits(b8, 8, 5, true)
}

// ConvertFromBech32 collapses together the bit expanded 5 bit numbers
// encoded in bech32.
func ConvertFromBech32(b5 []byte) (b8 []byte, err error) {
	return bech32.ConvertBits(b5, 5, 8, false)
}

func encode(hrp, valueHex string) (s string, err error) {
	if len(valueHex) != HexKeyLen {
		err = fmt.Errorf("%w: value is %d chars, must be %d",
			bech32.ErrInvalidIdentifier, len(valueHex), HexKeyLen)
		return
	}
	var b8, b5 []byte
	if b8, err = hex.Dec(valueHex); err != nil {
		err = fmt.Errorf("%w: not valid hex: %s",
			bech32.ErrInvalidIdentifier, err.Error())
		return
	}
	if b5, err = ConvertForBech32(b8); err != nil {
		return
	}
	return bech32.Encode(hrp, b5)
}

func decode(hrp, encoded string) (valueHex string, err error) {
	var prefix string
	var b5, b8 []byte
	if prefix, b5, err = bech32.Decode(encoded); err != nil {
		return
	}
	if prefix != hrp {
		err = fmt.Errorf("%w: wrong human readable part, got '%s' want '%s'",
			bech32.ErrInvalidIdentifier, prefix, hrp)
		return
	}
	if b8, err = ConvertFromBech32(b5); err != nil {
		return
	}
	if len(b8) != 32 {
		err = fmt.Errorf("%w: payload is %d bytes, must be 32",
			bech32.ErrInvalidIdentifier, len(b8))
		return
	}
	return hex.Enc(b8), nil
}

// PubKeyToNpub encodes a hex public key as a bech32 string (npub).
func PubKeyToNpub(pubKeyHex string) (s string, err error) {
	return encode(PubHRP, pubKeyHex)
}

// SecKeyToNsec encodes a hex secret key as a bech32 string (nsec).
func SecKeyToNsec(secKeyHex string) (s string, err error) {
	return encode(SecHRP, secKeyHex)
}

// NpubToPubKey decodes an npub back to the hex public key.
func NpubToPubKey(encoded string) (pubKeyHex string, err error) {
	return decode(PubHRP, encoded)
}

// NsecToSecKey decodes an nsec back to the hex secret key.
func NsecToSecKey(encoded string) (secKeyHex string, err error) {
	return decode(SecHRP, encoded)
}
