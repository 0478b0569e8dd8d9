// Package hex shortens the names of the standard library hex encoder
// functions, as they appear at nearly every layer boundary in this module.
package hex

import (
	"encoding/hex"
)

func Enc(b []byte) (s string) { return hex.EncodeToString(b) }

func Dec(s string) (b []byte, err error) { return hex.DecodeString(s) }
