package cloudauth

import "errors"

var (
	// ErrClosed is returned by Manager methods after Close.
	ErrClosed = errors.New("cloudauth: manager closed")

	// ErrInvalidKey is returned when the configured or stored encryption key cannot be used.
	ErrInvalidKey = errors.New("cloudauth: invalid encryption key")
)
