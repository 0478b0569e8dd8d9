// Package bech32 implements the checksummed base32 text encoding used for
// the protocol's human readable identifiers (npub, nsec, note).
//
// The encoding is a human readable prefix, the separator '1', and the
// payload regrouped into 5 bit units, followed by a 6 character checksum
// computed over a BCH polymod that mixes in the prefix. It is purely a text
// transform and knows nothing about keys or events.
package bech32

import (
	"fmt"
	"strings"
)

// Charset is the set of 32 characters a data part may contain, indexed by
// their 5 bit value.
const Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// MaxLength is the longest identifier Decode accepts, separator and
// checksum included.
const MaxLength = 90

// checksumLen is the number of 5 bit groups appended by createChecksum.
const checksumLen = 6

var gen = [5]int{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func polymod(values []byte) (chk int) {
	chk = 1
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ int(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 != 0 {
				chk ^= gen[i]
			}
		}
	}
	return
}

func hrpExpand(hrp string) (v []byte) {
	v = make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		v = append(v, byte(c>>5))
	}
	v = append(v, 0)
	for _, c := range hrp {
		v = append(v, byte(c&31))
	}
	return
}

func createChecksum(hrp string, data []byte) (checksum []byte) {
	values := append(hrpExpand(hrp), data...)
	values = append(values, make([]byte, checksumLen)...)
	pm := polymod(values) ^ 1
	checksum = make([]byte, checksumLen)
	for i := 0; i < checksumLen; i++ {
		checksum[i] = byte((pm >> uint(5*(5-i))) & 31)
	}
	return
}

func verifyChecksum(hrp string, data []byte) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

// Encode produces hrp + "1" + data + checksum from a payload already
// regrouped into 5 bit units (see ConvertBits). The result is always
// lowercase.
func Encode(hrp string, data []byte) (s string, err error) {
	if hrp == "" {
		err = fmt.Errorf("%w: empty human readable part", ErrInvalidIdentifier)
		return
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			err = fmt.Errorf("%w: invalid character '%c' in human readable part",
				ErrInvalidIdentifier, c)
			return
		}
	}
	hrp = strings.ToLower(hrp)
	for _, d := range data {
		if d >= 32 {
			err = fmt.Errorf("%w: data value %d exceeds 5 bits",
				ErrInvalidIdentifier, d)
			return
		}
	}
	var b strings.Builder
	b.WriteString(hrp)
	b.WriteByte('1')
	for _, d := range append(data, createChecksum(hrp, data)...) {
		b.WriteByte(Charset[d])
	}
	return b.String(), nil
}

// Decode splits and validates an identifier, returning the human readable
// part and the 5 bit payload with the checksum removed. It rejects mixed
// case strings, strings longer than MaxLength, empty prefixes and checksum
// mismatches, all wrapped as ErrInvalidIdentifier.
func Decode(s string) (hrp string, data []byte, err error) {
	if len(s) > MaxLength {
		err = fmt.Errorf("%w: length %d exceeds maximum %d",
			ErrInvalidIdentifier, len(s), MaxLength)
		return
	}
	lower := strings.ToLower(s)
	if s != lower && s != strings.ToUpper(s) {
		err = fmt.Errorf("%w: mixed case string", ErrInvalidIdentifier)
		return
	}
	s = lower
	pos := strings.LastIndexByte(s, '1')
	if pos < 1 {
		err = fmt.Errorf("%w: missing or empty human readable part",
			ErrInvalidIdentifier)
		return
	}
	if pos+1+checksumLen > len(s) {
		err = fmt.Errorf("%w: data part too short", ErrInvalidIdentifier)
		return
	}
	hrp = s[:pos]
	for _, c := range hrp {
		if c < 33 || c > 126 {
			err = fmt.Errorf("%w: invalid character '%c' in human readable part",
				ErrInvalidIdentifier, c)
			return "", nil, err
		}
	}
	data = make([]byte, 0, len(s)-pos-1)
	for _, c := range s[pos+1:] {
		idx := strings.IndexRune(Charset, c)
		if idx < 0 {
			err = fmt.Errorf("%w: invalid character '%c' in data part",
				ErrInvalidIdentifier, c)
			return "", nil, err
		}
		data = append(data, byte(idx))
	}
	if !verifyChecksum(hrp, data) {
		err = fmt.Errorf("%w: checksum mismatch", ErrInvalidIdentifier)
		return "", nil, err
	}
	data = data[:len(data)-checksumLen]
	return
}

// ConvertBits regroups the elements of data from fromBits-wide to
// toBits-wide units. Encoding pads the final group; decoding requires the
// padding to be empty and zero.
func ConvertBits(data []byte, fromBits, toBits uint8, pad bool) (out []byte,
	err error) {

	if fromBits < 1 || fromBits > 8 || toBits < 1 || toBits > 8 {
		err = fmt.Errorf("%w: only bit groups between 1 and 8 allowed",
			ErrInvalidIdentifier)
		return
	}
	var acc, bits uint
	maxv := uint(1)<<toBits - 1
	out = make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)
	for _, v := range data {
		if uint(v)>>fromBits != 0 {
			err = fmt.Errorf("%w: value %d exceeds %d bits",
				ErrInvalidIdentifier, v, fromBits)
			return nil, err
		}
		acc = acc<<fromBits | uint(v)
		bits += uint(fromBits)
		for bits >= uint(toBits) {
			bits -= uint(toBits)
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(uint(toBits)-bits)&maxv))
		}
	} else if bits >= uint(fromBits) || acc<<(uint(toBits)-bits)&maxv != 0 {
		err = fmt.Errorf("%w: invalid padding", ErrInvalidIdentifier)
		return nil, err
	}
	return
}
