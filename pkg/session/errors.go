package session

import "errors"

var (
	// ErrMissingID indicates a record without an identifier.
	ErrMissingID = errors.New("session: record id is required")

	// ErrMissingScopes indicates a record with an empty scope set.
	ErrMissingScopes = errors.New("session: record must carry at least one scope")

	// ErrMissingAccessToken indicates a record without an access token.
	ErrMissingAccessToken = errors.New("session: access token is required")

	// ErrDuplicateID indicates two records sharing an identifier.
	ErrDuplicateID = errors.New("session: duplicate record id")

	// ErrMalformed wraps decoding failures of a persisted record list.
	ErrMalformed = errors.New("session: malformed record list")
)
