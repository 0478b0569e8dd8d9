// Package timestamp provides the 1 second precision UNIX timestamp type
// carried in the created_at field of events and the since/until fields of
// filters.
package timestamp

import (
	"time"
)

// T is a UNIX timestamp with 1 second precision. It is author supplied and
// carries no ordering guarantee beyond being informational.
type T int64

// Now returns the current UNIX timestamp of the current second.
func Now() T { return T(time.Now().Unix()) }

// Time converts the timestamp into a time.Time.
func (t T) Time() time.Time { return time.Unix(int64(t), 0) }

// Ptr returns a pointer to the value, for the optional fields of filters
// where nil means unset.
func (t T) Ptr() *T { return &t }
