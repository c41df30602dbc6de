package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/events"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// Store is the persistence the registry reads through.
type Store interface {
	Read(ctx context.Context) []session.Record
	Write(ctx context.Context, records []session.Record)
	Fingerprint(ctx context.Context) string
}

// Registry answers session queries and publishes change events.
// Safe for concurrent use.
type Registry struct {
	store  Store
	hub    *events.Hub
	logger *slog.Logger

	mu     sync.Mutex
	known  []session.Record
	loaded bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHub publishes changes on hub instead of a private one.
func WithHub(hub *events.Hub) Option {
	return func(r *Registry) {
		if hub != nil {
			r.hub = hub
		}
	}
}

// New creates a registry over store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hub == nil {
		r.hub = events.NewHub(events.WithLogger(r.logger))
	}
	r.logger = r.logger.With(logger.Component("registry"))
	return r
}

// Hub returns the hub changes are published on.
func (r *Registry) Hub() *events.Hub {
	return r.hub
}

// Subscribe is shorthand for Hub().Subscribe.
func (r *Registry) Subscribe(ctx context.Context) events.Subscriber {
	return r.hub.Subscribe(ctx)
}

// GetSessions returns every valid session when no scopes are given, or the
// sessions whose scopes cover all of them.
func (r *Registry) GetSessions(ctx context.Context, scopes ...string) []session.Record {
	records := r.store.Read(ctx)
	if len(scopes) > 0 {
		records = session.Filter(records, scopes)
	}
	return session.CloneAll(records)
}

// AddSession appends rec, persists the list, then publishes SessionAdded.
// A record whose id already exists replaces it.
func (r *Registry) AddSession(ctx context.Context, rec session.Record) error {
	if err := rec.Validate(); err != nil {
		return errors.Join(ErrInvalidSession, err)
	}
	rec = rec.Clone()

	r.mu.Lock()
	records := r.store.Read(ctx)
	var replaced []session.Record
	kept := records[:0]
	for _, existing := range records {
		if existing.ID == rec.ID {
			replaced = append(replaced, existing)
			continue
		}
		kept = append(kept, existing)
	}
	records = append(kept, rec)
	r.store.Write(ctx, records)
	r.remember(records)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "session added",
		logger.SessionID(rec.ID), logger.Account(rec.Account.Label), logger.Scopes(rec.Scopes))
	r.publish(ctx, events.SessionRemoved, replaced)
	r.publish(ctx, events.SessionAdded, []session.Record{rec})
	return nil
}

// RemoveSession deletes the session with id. It reports false, and neither
// writes nor publishes, when no such session exists.
func (r *Registry) RemoveSession(ctx context.Context, id string) bool {
	r.mu.Lock()
	records := r.store.Read(ctx)
	removed, ok := session.Find(records, id)
	if !ok {
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "remove of unknown session ignored", logger.SessionID(id))
		return false
	}
	kept := make([]session.Record, 0, len(records)-1)
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	r.store.Write(ctx, kept)
	r.remember(kept)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "session removed", logger.SessionID(id))
	r.publish(ctx, events.SessionRemoved, []session.Record{removed})
	return true
}

// RemoveAll deletes every session and returns them.
func (r *Registry) RemoveAll(ctx context.Context) []session.Record {
	r.mu.Lock()
	records := r.store.Read(ctx)
	if len(records) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.store.Write(ctx, []session.Record{})
	r.remember(nil)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "all sessions removed", logger.Count(len(records)))
	r.publish(ctx, events.SessionRemoved, records)
	return records
}

// Load primes the last-known list without publishing anything.
func (r *Registry) Load(ctx context.Context) {
	records := r.store.Read(ctx)
	r.mu.Lock()
	r.remember(records)
	r.mu.Unlock()
}

// Reconcile re-reads the store and publishes the difference from the
// last-known list: SessionRemoved for records that vanished or changed and
// SessionAdded for new or changed ones. The first call after New only primes
// the list.
func (r *Registry) Reconcile(ctx context.Context) {
	r.mu.Lock()
	current := r.store.Read(ctx)
	if !r.loaded {
		r.remember(current)
		r.mu.Unlock()
		return
	}
	added, removed := diff(r.known, current)
	r.remember(current)
	r.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		r.logger.InfoContext(ctx, "store changed externally",
			slog.Int("added", len(added)), slog.Int("removed", len(removed)))
	}
	r.publish(ctx, events.SessionRemoved, removed)
	r.publish(ctx, events.SessionAdded, added)
}

// Watch polls the store fingerprint every interval and reconciles when it
// changes. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r.mu.Lock()
	needsLoad := !r.loaded
	r.mu.Unlock()
	if needsLoad {
		r.Load(ctx)
	}

	last := r.store.Fingerprint(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fp := r.store.Fingerprint(ctx)
			if fp == last {
				continue
			}
			last = fp
			r.Reconcile(ctx)
		}
	}
}

func (r *Registry) remember(records []session.Record) {
	r.known = session.CloneAll(records)
	r.loaded = true
}

func (r *Registry) publish(ctx context.Context, kind events.Kind, records []session.Record) {
	if len(records) == 0 {
		return
	}
	if err := r.hub.Publish(ctx, events.Change{Kind: kind, Sessions: records}); err != nil {
		r.logger.DebugContext(ctx, "change not published", logger.Event(string(kind)), logger.Error(err))
	}
}

func diff(before, after []session.Record) (added, removed []session.Record) {
	for _, rec := range after {
		old, ok := session.Find(before, rec.ID)
		if !ok || !old.Equal(rec) {
			added = append(added, rec)
		}
	}
	for _, rec := range before {
		cur, ok := session.Find(after, rec.ID)
		if !ok || !cur.Equal(rec) {
			removed = append(removed, rec)
		}
	}
	return added, removed
}
