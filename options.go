package cloudauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/cloudauth/pkg/authflow"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
)

type options struct {
	logger     *slog.Logger
	backend    secretstore.Store
	keyBackend secretstore.Store
	httpClient *http.Client
	identity   authflow.IdentityFetcher
	browser    func(string) error
	onURL      func(string)
	registerer prometheus.Registerer
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend stores sessions in backend instead of opening Config.Store.
// The generated encryption key goes there too unless WithKeyBackend is set
// or Config.KeyBackend names another store.
func WithBackend(backend secretstore.Store) Option {
	return func(o *options) { o.backend = backend }
}

// WithKeyBackend keeps the generated encryption key in backend.
func WithKeyBackend(backend secretstore.Store) Option {
	return func(o *options) { o.keyBackend = backend }
}

// WithHTTPClient sets the client used for the token and identity endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithIdentityFetcher replaces the userinfo lookup.
func WithIdentityFetcher(f authflow.IdentityFetcher) Option {
	return func(o *options) { o.identity = f }
}

// WithBrowser replaces the system browser opener.
func WithBrowser(open func(url string) error) Option {
	return func(o *options) { o.browser = open }
}

// WithAuthURLHandler is called with every authorization URL, e.g. to print
// it for users on headless machines.
func WithAuthURLHandler(fn func(url string)) Option {
	return func(o *options) { o.onURL = fn }
}

// WithMetrics registers sign-in metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock replaces time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
