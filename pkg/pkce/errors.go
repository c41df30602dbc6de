package pkce

import "errors"

// ErrEntropyUnavailable is returned when the system random source cannot be read.
var ErrEntropyUnavailable = errors.New("pkce: entropy source unavailable")
