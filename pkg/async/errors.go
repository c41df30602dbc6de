package async

import (
	"errors"
	"fmt"
)

var ErrAbandoned = errors.New("async: wait abandoned")

// AbandonedError is returned by AwaitContext when the waiter's context ends
// first. It matches ErrAbandoned and unwraps to the context cause.
type AbandonedError struct {
	Cause error
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("async: wait abandoned: %v", e.Cause)
}

func (e *AbandonedError) Unwrap() []error {
	return []error{ErrAbandoned, e.Cause}
}
