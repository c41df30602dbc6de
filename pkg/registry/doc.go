// Package registry is the in-memory view over the persisted session list.
//
// Every query reads through the session store, so expiry pruning happens on
// each call. Mutations publish events.SessionAdded or events.SessionRemoved
// on the hub after the store write. Changes made by other processes are
// picked up by Reconcile, either called directly or driven by Watch, which
// polls the store fingerprint.
package registry
