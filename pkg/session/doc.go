// Package session defines the durable session record produced by a successful
// sign-in and the helpers that the store and registry use to reason about it.
//
// A Record is never mutated in place once persisted. It is created by the
// authorization flow, replaced wholesale by removal, and destroyed either
// explicitly or by expiry pruning when the store is read.
//
// A record without ExpiresAt never expires. A record whose ExpiresAt is at or
// before the current time is expired.
//
// Records are serialized as a JSON list with Marshal and parsed with Unmarshal.
package session
