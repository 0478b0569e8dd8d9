package pool

import "errors"

// ErrNoReachableRelay means an operation needed at least one relay in the
// required direction and none could be used. Timeouts with partial results
// are reported through result flags, not through this error.
var ErrNoReachableRelay = errors.New("no reachable relay for operation")

// ErrDuplicateRelay means AddRelay was given a URL already in the set
// after normalization. Relay configs are immutable for the session, so the
// existing entry is left untouched.
var ErrDuplicateRelay = errors.New("relay already in pool")
