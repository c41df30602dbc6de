package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/autherr"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/secrets"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// DefaultKey is the secret store key holding the session blob.
const DefaultKey = "sessions"

// SealPurpose binds the derived encryption key to session storage.
const SealPurpose = "session-store"

// Store reads and writes the persisted session list.
type Store struct {
	backend secretstore.Store
	sealer  *secrets.Sealer
	key     string
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the secret store key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSealer encrypts the blob at rest. Without it the JSON is stored as is,
// which is only appropriate for backends that already encrypt (the OS keyring).
func WithSealer(sealer *secrets.Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

// New creates a Store on top of backend.
func New(backend secretstore.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("sessionstore"))
	return s
}

// Read returns all unexpired records. Expired ones are removed from storage
// as a side effect.
func (s *Store) Read(ctx context.Context) []session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	valid, expired := session.Prune(records, s.now())
	if len(expired) > 0 {
		for _, r := range expired {
			s.logger.DebugContext(ctx, "pruning expired session", logger.SessionID(r.ID))
		}
		s.save(ctx, valid)
	}
	return valid
}

// Write replaces the stored list with records.
func (s *Store) Write(ctx context.Context, records []session.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx, records)
}

// Fingerprint hashes the raw stored blob. It changes whenever another process
// rewrites the store. An empty string means nothing is stored or the backend
// could not be read.
func (s *Store) Fingerprint(ctx context.Context) string {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.DebugContext(ctx, "fingerprint read failed", logger.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Store) load(ctx context.Context) []session.Record {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.WarnContext(ctx, "session store unreadable",
			logger.Error(&autherr.PersistenceError{Op: "read", Err: err}))
		return []session.Record{}
	}
	if !ok || raw == "" {
		return []session.Record{}
	}

	if s.sealer != nil {
		raw, err = s.sealer.OpenString(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "session store blob cannot be decrypted",
				logger.Error(&autherr.PersistenceError{Op: "decrypt", Err: err}))
			return []session.Record{}
		}
	}

	records, err := session.Unmarshal([]byte(raw))
	if err != nil {
		s.logger.WarnContext(ctx, "session store blob is corrupt",
			logger.Error(&autherr.PersistenceError{Op: "decode", Err: err}))
		return []session.Record{}
	}
	return records
}

func (s *Store) save(ctx context.Context, records []session.Record) {
	data, err := session.Marshal(records)
	if err != nil {
		s.logger.ErrorContext(ctx, "session encode failed",
			logger.Error(&autherr.PersistenceError{Op: "encode", Err: err}))
		return
	}
	blob := string(data)
	if s.sealer != nil {
		blob, err = s.sealer.SealString(blob)
		if err != nil {
			s.logger.ErrorContext(ctx, "session encrypt failed",
				logger.Error(&autherr.PersistenceError{Op: "encrypt", Err: err}))
			return
		}
	}
	if err := s.backend.Set(ctx, s.key, blob); err != nil {
		s.logger.ErrorContext(ctx, "session write failed",
			logger.Error(&autherr.PersistenceError{Op: "write", Err: err}),
			logger.Count(len(records)))
		return
	}
	s.logger.DebugContext(ctx, "sessions written", logger.Count(len(records)))
}
