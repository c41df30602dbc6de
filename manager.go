package cloudauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/authflow"
	"github.com/dmitrymomot/cloudauth/pkg/callback"
	"github.com/dmitrymomot/cloudauth/pkg/events"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/registry"
	"github.com/dmitrymomot/cloudauth/pkg/secrets"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
	"github.com/dmitrymomot/cloudauth/pkg/session"
	"github.com/dmitrymomot/cloudauth/pkg/sessioncache"
	"github.com/dmitrymomot/cloudauth/pkg/sessionstore"
)

// Manager owns every component of the sign-in stack. Build one with New at
// startup and pass it to whatever needs a session.
type Manager struct {
	logger   *slog.Logger
	store    *sessionstore.Store
	registry *registry.Registry
	listener *callback.Listener
	flow     *authflow.Flow
	cache    *sessioncache.Cache
	closers  []io.Closer

	mu     sync.Mutex
	closed bool
}

// New opens the configured secret store, loads or creates the encryption
// key and wires the components together.
func New(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	o := options{logger: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{logger: o.logger.With(logger.Component("cloudauth"))}

	backend := o.backend
	if backend == nil {
		b, err := secretstore.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		backend = b
		m.track(b)
	}

	key, err := m.masterKey(ctx, cfg, backend, o)
	if err != nil {
		m.closeAll()
		return nil, err
	}
	sealer, err := secrets.NewSealer(key, sessionstore.SealPurpose)
	if err != nil {
		m.closeAll()
		return nil, errors.Join(ErrInvalidKey, err)
	}

	m.store = sessionstore.New(backend,
		sessionstore.WithSealer(sealer),
		sessionstore.WithLogger(o.logger),
		sessionstore.WithClock(o.now),
	)
	m.registry = registry.New(m.store, registry.WithLogger(o.logger))
	m.registry.Load(ctx)

	m.listener = callback.New(cfg.Callback, callback.WithLogger(o.logger))

	flowOpts := []authflow.Option{
		authflow.WithLogger(o.logger),
		authflow.WithHTTPClient(o.httpClient),
		authflow.WithIdentityFetcher(o.identity),
		authflow.WithBrowser(o.browser),
		authflow.WithAuthURLHandler(o.onURL),
		authflow.WithClock(o.now),
	}
	if o.registerer != nil {
		flowOpts = append(flowOpts, authflow.WithMetrics(authflow.NewMetrics(o.registerer)))
	}
	m.flow, err = authflow.New(cfg.Auth, m.listener, m.registry, flowOpts...)
	if err != nil {
		m.closeAll()
		return nil, err
	}

	m.cache = sessioncache.New(m.flow, m.registry, m.flow.DefaultScopes(),
		sessioncache.WithLogger(o.logger),
		sessioncache.WithClock(o.now),
	)
	return m, nil
}

// masterKey returns the configured key or the one kept in the key store,
// creating it on first run. With the file backend the key store defaults to
// the OS keyring so the key does not sit next to the sealed sessions; if the
// keyring cannot be reached the key falls back to the session backend.
func (m *Manager) masterKey(ctx context.Context, cfg Config, backend secretstore.Store, o options) ([]byte, error) {
	if cfg.EncryptionKey != "" {
		key, err := secrets.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, errors.Join(ErrInvalidKey, err)
		}
		return key, nil
	}
	if o.keyBackend != nil {
		return loadKey(ctx, o.keyBackend)
	}

	name := cfg.KeyBackend
	explicit := name != ""
	if !explicit && o.backend == nil && isFileBackend(cfg.Store.Backend) {
		name = secretstore.BackendKeyring
	}
	if name == "" || (o.backend == nil && name == cfg.Store.Backend) {
		return loadKey(ctx, backend)
	}

	kcfg := cfg.Store
	kcfg.Backend = name
	keys, err := secretstore.Open(ctx, kcfg)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("open key store: %w", err)
		}
	} else {
		m.track(keys)
		key, adoptErr := m.adoptKey(ctx, keys, backend)
		if adoptErr == nil {
			return key, nil
		}
		if explicit {
			return nil, errors.Join(ErrInvalidKey, adoptErr)
		}
		err = adoptErr
	}

	m.logger.WarnContext(ctx, "keyring unavailable, keeping the encryption key next to the sessions",
		logger.Error(err))
	return loadKey(ctx, backend)
}

// adoptKey loads the key from keys. A key an earlier setup left in the
// session backend is moved over first so existing sessions still open.
func (m *Manager) adoptKey(ctx context.Context, keys, sessions secretstore.Store) ([]byte, error) {
	_, ok, err := keys.Get(ctx, MasterKeyName)
	if err != nil {
		return nil, err
	}
	if !ok {
		old, found, err := sessions.Get(ctx, MasterKeyName)
		if err == nil && found {
			if err := keys.Set(ctx, MasterKeyName, old); err != nil {
				return nil, err
			}
			if err := sessions.Delete(ctx, MasterKeyName); err != nil {
				m.logger.WarnContext(ctx, "old encryption key not removed", logger.Error(err))
			}
			m.logger.InfoContext(ctx, "encryption key moved to the key store")
		}
	}
	return secretstore.LoadOrCreateKey(ctx, keys, MasterKeyName)
}

func loadKey(ctx context.Context, store secretstore.Store) ([]byte, error) {
	key, err := secretstore.LoadOrCreateKey(ctx, store, MasterKeyName)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return key, nil
}

func isFileBackend(name string) bool {
	return name == "" || name == secretstore.BackendFile
}

func (m *Manager) track(v any) {
	if c, ok := v.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
}

func (m *Manager) closeAll() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Session returns a session covering the default scopes. A stored one is
// returned without network calls; otherwise the user is asked to sign in.
// Concurrent callers share one sign-in.
func (m *Manager) Session(ctx context.Context) (session.Record, error) {
	if m.isClosed() {
		return session.Record{}, ErrClosed
	}
	return m.cache.GetSession(ctx)
}

// Sessions lists stored sessions that cover every given scope. No scopes
// means all sessions.
func (m *Manager) Sessions(ctx context.Context, scopes ...string) []session.Record {
	return m.registry.GetSessions(ctx, scopes...)
}

// SignIn always runs the interactive flow, adding a session even when one
// covering the scopes is already stored. No scopes means the defaults.
func (m *Manager) SignIn(ctx context.Context, scopes ...string) (session.Record, error) {
	if m.isClosed() {
		return session.Record{}, ErrClosed
	}
	return m.flow.RequestSession(ctx, scopes)
}

// SignOut removes the session with id. It reports false for unknown ids.
func (m *Manager) SignOut(ctx context.Context, id string) bool {
	if !m.registry.RemoveSession(ctx, id) {
		return false
	}
	m.cache.Forget(id)
	return true
}

// SignOutAll removes every stored session and returns them.
func (m *Manager) SignOutAll(ctx context.Context) []session.Record {
	removed := m.registry.RemoveAll(ctx)
	m.cache.ClearCache()
	return removed
}

// Subscribe delivers session-added and session-removed changes until ctx is
// done or the subscriber is closed.
func (m *Manager) Subscribe(ctx context.Context) events.Subscriber {
	return m.registry.Subscribe(ctx)
}

// Watch picks up changes other processes make to the store, polling every
// interval. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	m.registry.Watch(ctx, interval)
}

// Phase reports where the current interactive sign-in is.
func (m *Manager) Phase() authflow.Phase {
	return m.flow.Phase()
}

// Close stops the callback listener and the event hub and releases the
// backend connection. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	ctx := context.Background()
	errs := []error{
		m.cache.Close(),
		m.listener.Stop(ctx),
		m.registry.Hub().Close(),
		m.closeAll(),
	}
	return errors.Join(errs...)
}
