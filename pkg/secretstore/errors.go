package secretstore

import "errors"

var (
	// ErrEmptyKey is returned for operations with an empty key.
	ErrEmptyKey = errors.New("secretstore: key is required")

	// ErrBackendUnavailable wraps failures reaching the underlying backend.
	ErrBackendUnavailable = errors.New("secretstore: backend unavailable")

	// ErrIncompleteEntry is returned when a value split across keyring
	// entries is missing a part.
	ErrIncompleteEntry = errors.New("secretstore: entry is incomplete")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("secretstore: unknown backend")
)
