// Package sessionstore persists the session record list as one sealed blob in
// a secretstore.Store.
//
// Reads prune expired records and, when anything was pruned, write the
// remaining list straight back. Neither Read nor Write returns an error:
// an unreadable or corrupt blob reads as an empty list and a failed write is
// logged as an autherr.PersistenceError. Callers keep working from memory.
package sessionstore
