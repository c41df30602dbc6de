package authflow

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingClientID is returned by New when no OAuth client id is configured.
	ErrMissingClientID = errors.New("authflow: client id is required")

	// ErrFlowInProgress is returned when RequestSession is called during a run.
	ErrFlowInProgress = errors.New("authflow: a sign-in is already in progress")
)

// Causes attached to the internal deadlines. Both wrap context.DeadlineExceeded
// so they classify as timeouts.
var (
	errFlowDeadline     = fmt.Errorf("sign-in exceeded flow timeout: %w", context.DeadlineExceeded)
	errCodeWaitDeadline = fmt.Errorf("no redirect before code wait timeout: %w", context.DeadlineExceeded)
)

// InvalidTransitionError reports a phase change the transition table forbids.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("authflow: no transition from %s to %s", e.From, e.To)
}
