package sessioncache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/async"
	"github.com/dmitrymomot/cloudauth/pkg/autherr"
	"github.com/dmitrymomot/cloudauth/pkg/events"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/scopes"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// Flow starts an interactive sign-in.
type Flow interface {
	RequestSession(ctx context.Context, scopes []string) (session.Record, error)
}

// Registry is the stored-session lookup the cache consults before signing in.
type Registry interface {
	GetSessions(ctx context.Context, scopes ...string) []session.Record
	Hub() *events.Hub
}

// Cache de-duplicates session creation. Safe for concurrent use.
type Cache struct {
	flow     Flow
	registry Registry
	scopes   []string
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   *session.Record
	inflight *pending
	draining *async.Future[session.Record]
	stop     context.CancelFunc
}

type pending struct {
	future  *async.Future[session.Record]
	cancel  context.CancelFunc
	waiters int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache serving sessions that cover requested scopes.
// It listens for removals on the registry hub until Close.
func New(flow Flow, registry Registry, requested []string, opts ...Option) *Cache {
	c := &Cache{
		flow:     flow,
		registry: registry,
		scopes:   scopes.Normalize(requested),
		logger:   logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("sessioncache"))

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	registry.Hub().On(ctx, c.onChange)
	return c
}

// Scopes returns the scopes every served session covers.
func (c *Cache) Scopes() []string {
	return scopes.Normalize(c.scopes)
}

// GetSession returns a valid session, signing in interactively if none is
// stored. Cancelling ctx abandons this caller's wait with autherr.ErrCancelled.
func (c *Cache) GetSession(ctx context.Context) (session.Record, error) {
	c.mu.Lock()
	if rec, ok := c.cachedLocked(); ok {
		c.mu.Unlock()
		return rec, nil
	}
	p := c.inflight
	if p == nil {
		p = c.startLocked(ctx)
	}
	p.waiters++
	c.mu.Unlock()

	rec, err := p.future.AwaitContext(ctx)
	if err != nil && errors.Is(err, async.ErrAbandoned) {
		c.abandon(p)
		if errors.Is(err, context.DeadlineExceeded) {
			return session.Record{}, errors.Join(autherr.ErrTimeout, err)
		}
		return session.Record{}, errors.Join(autherr.ErrCancelled, err)
	}
	return rec, err
}

// ClearCache forgets the cached session and detaches any in-flight sign-in,
// so the next GetSession starts over. A detached sign-in still completes and
// persists for the callers already waiting on it; the next run waits for it
// to finish before starting.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.detachLocked()
}

// Forget drops the cached session if its ID is id. It is what a removal
// event does, without waiting for the event to be delivered.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.cached.ID == id {
		c.logger.Debug("cached session removed", logger.SessionID(id))
		c.cached = nil
	}
}

// Close stops listening for registry events.
func (c *Cache) Close() error {
	c.stop()
	return nil
}

func (c *Cache) cachedLocked() (session.Record, bool) {
	if c.cached == nil {
		return session.Record{}, false
	}
	if c.cached.IsExpired(c.now()) {
		c.logger.Debug("cached session expired", logger.SessionID(c.cached.ID))
		c.cached = nil
		return session.Record{}, false
	}
	return c.cached.Clone(), true
}

// startLocked launches the shared sign-in. It runs on a context detached from
// the first caller so later waiters are not cut off when that caller leaves.
// A detached run that has not finished yet is waited for first, so at most
// one flow runs at a time.
func (c *Cache) startLocked(ctx context.Context) *pending {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &pending{cancel: cancel}
	prev := c.draining
	p.future = async.Go(runCtx, func(ctx context.Context) (session.Record, error) {
		defer cancel()
		if prev != nil {
			// Wait unconditionally: a cancelled successor must not finish
			// before its predecessor, or a third run could overlap it.
			<-prev.Done()
		}
		if err := ctx.Err(); err != nil {
			err = errors.Join(autherr.ErrCancelled, err)
			c.settle(p, session.Record{}, err)
			return session.Record{}, err
		}
		rec, err := c.acquire(ctx)
		c.settle(p, rec, err)
		return rec, err
	})
	c.inflight = p
	return p
}

// detachLocked drops the in-flight marker, remembering the run so the next
// one can wait for it.
func (c *Cache) detachLocked() {
	if c.inflight == nil {
		return
	}
	c.draining = c.inflight.future
	c.inflight = nil
}

// acquire finds a stored session or runs the interactive flow.
func (c *Cache) acquire(ctx context.Context) (session.Record, error) {
	if rec, ok := c.lookup(ctx); ok {
		c.logger.DebugContext(ctx, "reusing stored session", logger.SessionID(rec.ID))
		return rec, nil
	}

	rec, err := c.flow.RequestSession(ctx, c.scopes)
	if errors.Is(err, autherr.ErrCompletedOutOfBand) {
		if found, ok := c.lookup(ctx); ok {
			return found, nil
		}
		return session.Record{}, err
	}
	return rec, err
}

// lookup returns the newest stored session covering the cache scopes.
func (c *Cache) lookup(ctx context.Context) (session.Record, bool) {
	return session.Newest(c.registry.GetSessions(ctx, c.scopes...))
}

func (c *Cache) settle(p *pending, rec session.Record, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != p {
		return
	}
	c.inflight = nil
	if err == nil {
		r := rec.Clone()
		c.cached = &r
	}
}

func (c *Cache) abandon(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.waiters--
	if p.waiters > 0 || p.future.IsComplete() {
		return
	}
	c.logger.Debug("all waiters left, cancelling sign-in")
	p.cancel()
	if c.inflight == p {
		c.detachLocked()
	}
}

func (c *Cache) onChange(ch events.Change) {
	if ch.Kind != events.SessionRemoved {
		return
	}
	for _, rec := range ch.Sessions {
		c.Forget(rec.ID)
	}
}
