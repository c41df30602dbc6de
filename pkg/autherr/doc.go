// Package autherr defines the error taxonomy shared by the sign-in flow,
// the callback listener and the session persistence layer.
//
// Sentinel values (ErrTimeout, ErrCancelled, ...) are matched with errors.Is.
// Structured errors (NetworkError, ProtocolError, ExchangeFailedError,
// PersistenceError) carry details and are matched with errors.As.
//
// Network, protocol, timeout and cancellation errors fail a sign-in attempt.
// ErrIdentityFetchDegraded and PersistenceError are absorbed by the core: they
// are logged and the operation still produces a result.
package autherr
