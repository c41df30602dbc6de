package scopes

import "errors"

// ErrEmptyScopes is returned when a scope set that must not be empty is.
var ErrEmptyScopes = errors.New("scopes: at least one scope is required")
