// Package sessioncache hands out one valid session to many callers while
// running at most one interactive sign-in at a time.
//
// GetSession answers from memory when a cached session is still valid. On a
// miss it looks for a stored session that covers the cache's scopes and only
// then starts the interactive flow. Callers arriving while a sign-in is in
// flight wait on the same async.Future; each may give up with its own
// context. The sign-in itself is cancelled only when every waiter has given
// up.
//
// A session-removed event naming the cached session drops it, so the next
// call looks again.
package sessioncache
