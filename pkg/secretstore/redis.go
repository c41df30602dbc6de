package secretstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores secrets as plain redis strings under "<prefix>:<key>".
type Redis struct {
	db     redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing client. Keys are namespaced with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{db: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	v, err := r.db.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrBackendUnavailable, err)
	}
	return v, true, nil
}

// Set stores the value without expiration; session expiry is enforced on read.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.db.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.db.Del(ctx, r.key(key)).Err(); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.db.Close()
}

var _ Store = (*Redis)(nil)

// connectRedis dials cfg.RedisURL, pinging up to RedisRetryAttempts times
// within RedisConnectTimeout.
func connectRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	attempts := max(cfg.RedisRetryAttempts, 1)
	timeout := cfg.RedisConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrBackendUnavailable, ctx.Err())
		case <-time.After(cfg.RedisRetryInterval):
		}
	}
	return nil, errors.Join(ErrBackendUnavailable, lastErr)
}
