package cloudauth

import (
	"github.com/dmitrymomot/cloudauth/pkg/authflow"
	"github.com/dmitrymomot/cloudauth/pkg/callback"
	"github.com/dmitrymomot/cloudauth/pkg/config"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
)

// MasterKeyName is the secret store key holding the generated encryption key.
const MasterKeyName = "master-key"

// Config is the complete manager configuration. Every field is read from the
// environment under config.DefaultPrefix, so CLOUDAUTH_CLIENT_ID fills
// Auth.ClientID and CLOUDAUTH_STORE_BACKEND fills Store.Backend.
type Config struct {
	Auth     authflow.Config
	Callback callback.Config
	Store    secretstore.Config `envPrefix:"STORE_"`

	// EncryptionKey is a base64 master key. When empty a key is generated on
	// first use and kept in the KeyBackend store.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// KeyBackend names the store holding the generated key. Empty means the
	// OS keyring when sessions live in files, and the session backend
	// otherwise.
	KeyBackend string `env:"KEY_BACKEND"`
}

// LoadConfig reads Config from the environment and an optional .env file.
func LoadConfig(opts ...config.Option) (Config, error) {
	return config.Load[Config](opts...)
}
