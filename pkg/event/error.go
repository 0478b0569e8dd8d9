package event

import (
	"errors"
)

// ErrIDMismatch means the id field does not equal the hash of the
// canonical serialization: the event was tampered with or corrupted.
var ErrIDMismatch = errors.New("event id mismatch")

// ErrSignatureInvalid means the signature does not verify against the
// event's pubkey and id.
var ErrSignatureInvalid = errors.New("event signature invalid")
