package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultPrefix namespaces every variable the module reads.
const DefaultPrefix = "CLOUDAUTH_"

type options struct {
	prefix      string
	files       []string
	environment map[string]string
}

// Option configures Load.
type Option func(*options)

// WithPrefix overrides DefaultPrefix. An empty prefix reads bare names.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithFiles loads the given .env files before parsing. Unlike the default
// ./.env, explicitly named files must exist.
func WithFiles(files ...string) Option {
	return func(o *options) { o.files = append(o.files, files...) }
}

// WithEnvironment parses from m instead of the process environment.
// No .env file is read.
func WithEnvironment(m map[string]string) Option {
	return func(o *options) { o.environment = m }
}

// Load parses the environment into a new T using `env` struct tags.
//
// Variables already set in the process win over .env values. A missing
// ./.env is not an error.
//
//	type Config struct {
//	    ClientID string        `env:"CLIENT_ID,required"`
//	    Timeout  time.Duration `env:"TIMEOUT" envDefault:"5m"`
//	}
//	cfg, err := config.Load[Config]() // reads CLOUDAUTH_CLIENT_ID, CLOUDAUTH_TIMEOUT
func Load[T any](opts ...Option) (T, error) {
	var zero T
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	if o.environment == nil {
		if err := loadEnvFiles(o.files); err != nil {
			return zero, err
		}
	}

	v, err := env.ParseAsWithOptions[T](env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
	})
	if err != nil {
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrLoadingEnvFile, err)
		}
		return nil
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Join(ErrLoadingEnvFile, err)
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}
