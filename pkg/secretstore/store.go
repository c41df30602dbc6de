package secretstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/secrets"
)

// Store is a minimal secret key/value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value and true, or false when the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set creates or replaces the value in a single call.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by Open.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string `env:"BACKEND" envDefault:"file"`
	Service  string `env:"SERVICE" envDefault:"cloudauth"`
	Dir      string `env:"DIR"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	RedisRetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RedisRetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
	RedisConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendKeyring:
		return NewKeyring(cfg.Service), nil
	case BackendFile, "":
		dir := cfg.Dir
		if dir == "" {
			d, err := DefaultDir(cfg.Service)
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return NewFile(dir)
	case BackendRedis:
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.Service), nil
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// LoadOrCreateKey returns the master key stored under name, generating and
// saving a new one if none exists yet.
func LoadOrCreateKey(ctx context.Context, store Store, name string) ([]byte, error) {
	encoded, ok, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	if ok {
		return secrets.DecodeKey(encoded)
	}

	key, err := secrets.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, name, secrets.EncodeKey(key)); err != nil {
		return nil, fmt.Errorf("save master key: %w", err)
	}
	return key, nil
}
