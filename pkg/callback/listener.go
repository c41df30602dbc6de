package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/cloudauth/pkg/autherr"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
)

const bindHost = "127.0.0.1"

// Listener is the loopback redirect receiver. Safe for concurrent use.
type Listener struct {
	cfg    Config
	logger *slog.Logger
	listen func(ctx context.Context, addr string) (net.Listener, error)

	mu      sync.Mutex
	srv     *http.Server
	port    int
	pending *Exchange
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) {
		if l != nil {
			ln.logger = l
		}
	}
}

// New creates a stopped listener.
func New(cfg Config, opts ...Option) *Listener {
	l := &Listener{
		cfg:    cfg.withDefaults(),
		logger: logger.Discard(),
		listen: func(ctx context.Context, addr string) (net.Listener, error) {
			var lc net.ListenConfig
			return lc.Listen(ctx, "tcp", addr)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("callback"))
	return l
}

// Start binds the listener. When port is taken the next one is tried, up to
// MaxPortAttempts ports in total. A port of 0 lets the OS choose. Calling
// Start on a running listener keeps the existing binding.
func (l *Listener) Start(ctx context.Context, port int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv != nil {
		return nil
	}

	ln, err := l.bind(ctx, port)
	if err != nil {
		return err
	}

	l.port = ln.Addr().(*net.TCPAddr).Port
	l.srv = &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: l.cfg.ReadHeaderTimeout,
	}

	srv := l.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback server stopped unexpectedly", logger.Error(err))
			l.fail(srv, &autherr.NetworkError{Op: "serve", Err: err})
		}
	}()

	l.logger.InfoContext(ctx, "callback listener started", logger.Port(l.port))
	return nil
}

func (l *Listener) bind(ctx context.Context, port int) (net.Listener, error) {
	if port <= 0 {
		ln, err := l.listen(ctx, net.JoinHostPort(bindHost, "0"))
		if err != nil {
			return nil, &autherr.NetworkError{Op: "bind", Err: err}
		}
		return ln, nil
	}

	var lastErr error
	for attempt := 0; attempt < l.cfg.MaxPortAttempts; attempt++ {
		candidate := port + attempt
		ln, err := l.listen(ctx, net.JoinHostPort(bindHost, strconv.Itoa(candidate)))
		if err == nil {
			return ln, nil
		}
		if !isAddrInUse(err) {
			return nil, &autherr.NetworkError{Op: "bind", Err: err}
		}
		l.logger.DebugContext(ctx, "port in use, trying next",
			logger.Port(candidate), logger.RetryCount(attempt+1))
		lastErr = err
	}
	return nil, &autherr.NetworkError{
		Op:  "bind",
		Err: fmt.Errorf("%w: %d-%d: %w", ErrNoFreePort, port, port+l.cfg.MaxPortAttempts-1, lastErr),
	}
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows reports WSAEADDRINUSE, which is not syscall.EADDRINUSE.
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "Only one usage of each socket address")
}

// Port returns the bound port, or 0 when stopped.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Running reports whether the listener is bound.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srv != nil
}

// RedirectURI returns http://localhost:<port>/callback, or "" when stopped.
func (l *Listener) RedirectURI() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.srv == nil {
		return ""
	}
	return "http://localhost:" + strconv.Itoa(l.port) + Path
}

// Expect opens the single pending exchange for nonce.
func (l *Listener) Expect(nonce string) (*Exchange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv == nil {
		return nil, ErrNotRunning
	}
	if l.pending != nil {
		return nil, ErrExchangePending
	}
	l.pending = newExchange(nonce, l)
	return l.pending, nil
}

// Stop rejects any pending exchange and shuts the server down. In-flight
// requests get ShutdownGrace, bounded further by ctx; after that the server
// is closed and the handle dropped regardless.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	srv := l.srv
	pending := l.pending
	l.srv = nil
	l.port = 0
	l.pending = nil
	l.mu.Unlock()

	if pending != nil {
		pending.settle(Result{Err: autherr.ErrListenerStopped})
	}
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.logger.WarnContext(ctx, "callback listener did not drain in time, closing", logger.Error(err))
		_ = srv.Close()
	}
	l.logger.InfoContext(ctx, "callback listener stopped")
	return nil
}

// fail rejects the pending exchange after the server died on its own.
func (l *Listener) fail(srv *http.Server, err error) {
	l.mu.Lock()
	if l.srv != srv {
		l.mu.Unlock()
		return
	}
	pending := l.pending
	l.srv = nil
	l.port = 0
	l.pending = nil
	l.mu.Unlock()

	if pending != nil {
		pending.settle(Result{Err: err})
	}
}

func (l *Listener) clear(e *Exchange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == e {
		l.pending = nil
	}
}

// take removes and returns the pending exchange when state matches it.
func (l *Listener) take(state string, allowEmpty bool) *Exchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	ex := l.pending
	if ex == nil {
		return nil
	}
	if state != ex.nonce && !(allowEmpty && state == "") {
		return nil
	}
	l.pending = nil
	return ex
}

// Handler returns the listener's router. Exposed for tests.
func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Get(Path, l.handleCallback)
	r.Options(Path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if code := q.Get("error"); code != "" {
		desc := q.Get("error_description")
		ex := l.take(state, true)
		if ex == nil {
			l.logger.WarnContext(r.Context(), "provider error for unknown state ignored", slog.String("error_code", code))
			l.render(w, r, http.StatusBadRequest, rejectedPage())
			return
		}
		ex.settle(Result{Err: &autherr.ProtocolError{
			Reason:      "authorization denied by provider",
			Code:        code,
			Description: desc,
		}})
		reason := "The provider returned: " + code
		if desc != "" {
			reason += " (" + desc + ")"
		}
		l.render(w, r, http.StatusOK, failurePage(reason))
		return
	}

	code := q.Get("code")
	if code == "" || state == "" {
		l.render(w, r, http.StatusBadRequest, rejectedPage())
		return
	}
	ex := l.take(state, false)
	if ex == nil {
		l.logger.WarnContext(r.Context(), "callback with unexpected state ignored")
		l.render(w, r, http.StatusBadRequest, rejectedPage())
		return
	}
	ex.settle(Result{Code: code})
	l.render(w, r, http.StatusOK, successPage())
}

func (l *Listener) render(w http.ResponseWriter, r *http.Request, status int, page templ.Component) {
	w.WriteHeader(status)
	if err := page.Render(r.Context(), w); err != nil {
		l.logger.DebugContext(r.Context(), "page render failed", logger.Error(err))
	}
}
