package callback

import "time"

// Path is the only route the listener serves.
const Path = "/callback"

// Config controls the loopback listener. The port to try first is passed to
// Start by the caller.
type Config struct {
	MaxPortAttempts   int           `env:"CALLBACK_MAX_PORT_ATTEMPTS" envDefault:"10"`
	ShutdownGrace     time.Duration `env:"CALLBACK_SHUTDOWN_GRACE" envDefault:"2s"`
	ReadHeaderTimeout time.Duration `env:"CALLBACK_READ_HEADER_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		MaxPortAttempts:   10,
		ShutdownGrace:     2 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPortAttempts <= 0 {
		c.MaxPortAttempts = d.MaxPortAttempts
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	return c
}
