package bech32

import (
	"errors"
)

// ErrInvalidIdentifier is wrapped by every encode and decode failure in
// this package so callers can gate on a single sentinel:
//
//	if errors.Is(err, bech32.ErrInvalidIdentifier) { ... }
var ErrInvalidIdentifier = errors.New("invalid bech32 identifier")
