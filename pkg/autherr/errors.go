package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the authorization code or the whole flow
	// did not complete within its ceiling.
	ErrTimeout = errors.New("auth: sign-in timed out")

	// ErrCancelled is returned when the caller abandoned the sign-in.
	ErrCancelled = errors.New("auth: sign-in cancelled")

	// ErrListenerStopped rejects a pending exchange when the callback listener shuts down.
	ErrListenerStopped = errors.New("auth: callback listener stopped")

	// ErrCompletedOutOfBand signals that a matching session appeared in the store
	// while waiting for the redirect. Callers should re-query instead of creating another.
	ErrCompletedOutOfBand = errors.New("auth: sign-in completed out of band")

	// ErrIdentityFetchDegraded marks a session built with a placeholder account.
	ErrIdentityFetchDegraded = errors.New("auth: identity fetch failed, using placeholder account")
)

// NetworkError wraps bind and transport failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("auth: network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an OAuth protocol violation or an error returned by the provider
// on the redirect.
type ProtocolError struct {
	Reason      string
	Code        string
	Description string
}

func (e *ProtocolError) Error() string {
	msg := "auth: protocol error: " + e.Reason
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// ExchangeFailedError is returned when the token endpoint answers with a non-success status.
type ExchangeFailedError struct {
	Status int
	Body   string
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("auth: token exchange failed with status %d: %s", e.Status, e.Body)
}

// PersistenceError describes a failed store operation. The core logs it and moves on.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("auth: persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is or wraps a NetworkError.
func IsNetwork(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// IsProtocol reports whether err is or wraps a ProtocolError.
func IsProtocol(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// IsExchangeFailed reports whether err is or wraps an ExchangeFailedError.
func IsExchangeFailed(err error) bool {
	var e *ExchangeFailedError
	return errors.As(err, &e)
}
