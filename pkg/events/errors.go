package events

import "errors"

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("events: hub is closed")
