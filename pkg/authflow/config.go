package authflow

import (
	"time"

	"golang.org/x/oauth2/google"
)

// Google's OpenID userinfo endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Config describes the OAuth client and the flow clocks.
// Empty endpoint URLs fall back to Google.
type Config struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USERINFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:"," envDefault:"cloud-platform,email,profile"`

	CallbackPort    int           `env:"CALLBACK_PORT" envDefault:"8085"`
	FlowTimeout     time.Duration `env:"FLOW_TIMEOUT" envDefault:"5m"`
	CodeWaitTimeout time.Duration `env:"CODE_WAIT_TIMEOUT" envDefault:"3m"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
	OpenBrowser     bool          `env:"OPEN_BROWSER" envDefault:"true"`
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = google.Endpoint.AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = google.Endpoint.TokenURL
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = GoogleUserInfoURL
	}
	if c.FlowTimeout <= 0 {
		c.FlowTimeout = 5 * time.Minute
	}
	if c.CodeWaitTimeout <= 0 {
		c.CodeWaitTimeout = 3 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = 10 * time.Second
	}
	return c
}
