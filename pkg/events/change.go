package events

import "github.com/dmitrymomot/cloudauth/pkg/session"

// Kind names a change event.
type Kind string

const (
	SessionAdded   Kind = "session-added"
	SessionRemoved Kind = "session-removed"
)

// Change carries the records affected by one add or remove.
type Change struct {
	Kind     Kind
	Sessions []session.Record
}

// Contains reports whether the change names the session id.
func (c Change) Contains(id string) bool {
	_, ok := session.Find(c.Sessions, id)
	return ok
}
