package callback

import "errors"

var (
	// ErrExchangePending is returned by Expect while another exchange is open.
	ErrExchangePending = errors.New("callback: an exchange is already pending")

	// ErrNotRunning is returned by Expect before Start or after Stop.
	ErrNotRunning = errors.New("callback: listener is not running")

	// ErrNoFreePort is wrapped in the NetworkError returned when every port
	// in the retry window is taken.
	ErrNoFreePort = errors.New("callback: no free port in range")
)
