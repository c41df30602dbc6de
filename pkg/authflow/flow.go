package authflow

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/cloudauth/pkg/autherr"
	"github.com/dmitrymomot/cloudauth/pkg/callback"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/pkce"
	"github.com/dmitrymomot/cloudauth/pkg/scopes"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// Listener receives the authorization redirect.
type Listener interface {
	Start(ctx context.Context, port int) error
	RedirectURI() string
	Expect(nonce string) (*callback.Exchange, error)
	Stop(ctx context.Context) error
}

// Sessions is the slice of the session registry the flow needs.
type Sessions interface {
	GetSessions(ctx context.Context, scopes ...string) []session.Record
	AddSession(ctx context.Context, rec session.Record) error
}

// Flow performs interactive sign-ins. It is safe for concurrent use but runs
// one attempt at a time.
type Flow struct {
	cfg      Config
	oauth    oauth2.Config
	listener Listener
	sessions Sessions
	identity IdentityFetcher
	client   *http.Client
	open     func(url string) error
	onURL    func(url string)
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	phase    *phaseMachine
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithHTTPClient sets the client used for the token and identity endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		if c != nil {
			f.client = c
		}
	}
}

// WithIdentityFetcher replaces the userinfo lookup.
func WithIdentityFetcher(fetcher IdentityFetcher) Option {
	return func(f *Flow) {
		if fetcher != nil {
			f.identity = fetcher
		}
	}
}

// WithBrowser replaces the system browser opener.
func WithBrowser(open func(url string) error) Option {
	return func(f *Flow) {
		if open != nil {
			f.open = open
		}
	}
}

// WithAuthURLHandler is called with every authorization URL, for example to
// print it when no browser can be opened.
func WithAuthURLHandler(fn func(url string)) Option {
	return func(f *Flow) {
		f.onURL = fn
	}
}

// WithMetrics records attempts in m.
func WithMetrics(m *Metrics) Option {
	return func(f *Flow) {
		f.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// New creates a Flow.
func New(cfg Config, listener Listener, sessions Sessions, opts ...Option) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	cfg = cfg.withDefaults()

	f := &Flow{
		cfg:      cfg,
		listener: listener,
		sessions: sessions,
		client:   &http.Client{Timeout: 30 * time.Second},
		open:     browser.OpenURL,
		logger:   logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(logger.Component("authflow"))
	f.phase = newPhaseMachine(f.logger)

	f.oauth = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if f.identity == nil {
		f.identity = UserInfo{URL: cfg.UserInfoURL, Client: f.client}
	}
	return f, nil
}

// Phase returns the phase of the current run, PhaseIdle between runs.
func (f *Flow) Phase() Phase {
	return f.phase.Current()
}

// DefaultScopes returns the scopes requested when RequestSession gets none.
func (f *Flow) DefaultScopes() []string {
	return scopes.Normalize(f.cfg.Scopes)
}

type attempt struct {
	id        string
	started   time.Time
	requested []string
	baseline  map[string]struct{}
	pair      pkce.Pair
	nonce     string
}

// RequestSession runs one interactive sign-in for requested scopes and
// returns the persisted session.
func (f *Flow) RequestSession(ctx context.Context, requested []string) (rec session.Record, err error) {
	requested = scopes.Normalize(requested)
	if len(requested) == 0 {
		requested = f.DefaultScopes()
	}
	if len(requested) == 0 {
		return session.Record{}, scopes.ErrEmptyScopes
	}

	if err := f.phase.begin(ctx); err != nil {
		return session.Record{}, err
	}

	a := &attempt{started: f.now(), requested: requested}
	id, idErr := ulid.New(ulid.Timestamp(a.started), rand.Reader)
	if idErr == nil {
		a.id = id.String()
	}
	ctx = logger.WithAttempt(ctx, a.id)

	ctx, cancel := context.WithTimeoutCause(ctx, f.cfg.FlowTimeout, errFlowDeadline)
	defer cancel()

	f.metrics.started()
	f.logger.InfoContext(ctx, "sign-in started", logger.Scopes(requested))

	defer func() {
		stopCtx := context.WithoutCancel(ctx)
		if stopErr := f.listener.Stop(stopCtx); stopErr != nil {
			f.logger.WarnContext(stopCtx, "listener stop failed", logger.Error(stopErr))
		}
		outcome := PhaseComplete
		if err != nil {
			outcome = classify(err)
		}
		f.phase.finish(stopCtx, outcome)
		f.metrics.finished(outcome, f.now().Sub(a.started))

		if err != nil {
			f.logger.WarnContext(stopCtx, "sign-in ended", logger.Phase(outcome), logger.Error(err))
		} else {
			f.logger.InfoContext(stopCtx, "sign-in complete",
				logger.SessionID(rec.ID), logger.Account(rec.Account.Label))
		}
	}()

	if a.pair, err = pkce.New(); err != nil {
		return session.Record{}, err
	}
	if a.nonce, err = pkce.GenerateNonce(); err != nil {
		return session.Record{}, err
	}
	a.baseline = make(map[string]struct{})
	for _, existing := range f.sessions.GetSessions(ctx) {
		a.baseline[existing.ID] = struct{}{}
	}

	code, redirectURI, err := f.awaitRedirect(ctx, a)
	if err != nil {
		return session.Record{}, err
	}

	if err := f.phase.to(ctx, PhaseCodeReceived); err != nil {
		return session.Record{}, err
	}
	if err := f.phase.to(ctx, PhaseExchanging); err != nil {
		return session.Record{}, err
	}
	token, err := f.exchange(ctx, code, redirectURI, a)
	if err != nil {
		return session.Record{}, err
	}

	if err := f.phase.to(ctx, PhaseFetchingIdentity); err != nil {
		return session.Record{}, err
	}
	account := f.fetchIdentity(ctx, token)
	if ctx.Err() != nil {
		return session.Record{}, contextError(ctx)
	}

	if err := f.phase.to(ctx, PhasePersisting); err != nil {
		return session.Record{}, err
	}
	rec = f.buildRecord(token, account, a)

	// Tokens were issued; a late cancellation must not discard them.
	if err := f.sessions.AddSession(context.WithoutCancel(ctx), rec); err != nil {
		return session.Record{}, err
	}
	if err := f.phase.to(ctx, PhaseComplete); err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

// awaitRedirect starts the listener, sends the user to the provider and
// waits for the authorization code.
func (f *Flow) awaitRedirect(ctx context.Context, a *attempt) (string, string, error) {
	if err := f.listener.Start(ctx, f.cfg.CallbackPort); err != nil {
		return "", "", err
	}
	ex, err := f.listener.Expect(a.nonce)
	if err != nil {
		return "", "", err
	}
	defer ex.Cancel()

	redirectURI := f.listener.RedirectURI()
	authURL := f.AuthCodeURL(redirectURI, a.nonce, a.pair.Challenge, a.requested)

	if err := f.phase.to(ctx, PhaseAwaitingRedirect); err != nil {
		return "", "", err
	}
	f.logger.InfoContext(ctx, "awaiting redirect", slog.String("redirect_uri", redirectURI))

	if f.onURL != nil {
		f.onURL(authURL)
	}
	if f.cfg.OpenBrowser {
		go func() {
			if err := f.open(authURL); err != nil {
				f.logger.WarnContext(ctx, "could not open browser", logger.Error(err))
			}
		}()
	}

	codeCtx, cancel := context.WithTimeoutCause(ctx, f.cfg.CodeWaitTimeout, errCodeWaitDeadline)
	defer cancel()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-ex.Result():
			if r.Err != nil {
				return "", "", r.Err
			}
			return r.Code, redirectURI, nil
		case <-codeCtx.Done():
			return "", "", contextError(codeCtx)
		case <-ticker.C:
			if id, ok := f.completedElsewhere(ctx, a); ok {
				f.logger.InfoContext(ctx, "matching session appeared in store", logger.SessionID(id))
				return "", "", autherr.ErrCompletedOutOfBand
			}
		}
	}
}

// completedElsewhere looks for a session that did not exist when the attempt
// started, was created after it started, and covers the requested scopes.
func (f *Flow) completedElsewhere(ctx context.Context, a *attempt) (string, bool) {
	for _, rec := range f.sessions.GetSessions(ctx, a.requested...) {
		if _, seen := a.baseline[rec.ID]; seen {
			continue
		}
		if rec.CreatedAt.Before(a.started.Truncate(time.Second)) {
			continue
		}
		return rec.ID, true
	}
	return "", false
}

// AuthCodeURL builds the provider authorization URL.
func (f *Flow) AuthCodeURL(redirectURI, state, challenge string, requested []string) string {
	oc := f.oauth
	oc.RedirectURL = redirectURI
	oc.Scopes = scopes.QualifyAll(requested)
	return oc.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
	)
}

func (f *Flow) exchange(ctx context.Context, code, redirectURI string, a *attempt) (*oauth2.Token, error) {
	oc := f.oauth
	oc.RedirectURL = redirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	token, err := oc.Exchange(ctx, code, oauth2.VerifierOption(a.pair.Verifier))
	if err == nil {
		return token, nil
	}
	if ctx.Err() != nil {
		return nil, contextError(ctx)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return nil, &autherr.ExchangeFailedError{Status: status, Body: strings.TrimSpace(string(rerr.Body))}
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return nil, &autherr.ProtocolError{Reason: "token response has no access token"}
	}
	return nil, &autherr.NetworkError{Op: "token exchange", Err: err}
}

// fetchIdentity asks the identity endpoint, then the id_token, and settles
// for the placeholder account when both fail.
func (f *Flow) fetchIdentity(ctx context.Context, token *oauth2.Token) session.Account {
	ictx, cancel := context.WithTimeout(ctx, f.cfg.IdentityTimeout)
	defer cancel()

	account, err := f.identity.FetchIdentity(ictx, token.AccessToken)
	if err == nil {
		return account
	}
	if fromToken, tokErr := accountFromIDToken(token); tokErr == nil {
		f.logger.InfoContext(ctx, "identity lookup failed, using id_token claims", logger.Error(err))
		return fromToken
	}
	f.logger.WarnContext(ctx, "identity lookup failed, using placeholder account",
		logger.Error(errors.Join(autherr.ErrIdentityFetchDegraded, err)))
	return session.PlaceholderAccount()
}

func (f *Flow) buildRecord(token *oauth2.Token, account session.Account, a *attempt) session.Record {
	granted := a.requested
	if raw, ok := token.Extra("scope").(string); ok {
		if parsed := scopes.Normalize(scopes.ParseScopes(raw)); len(parsed) > 0 {
			granted = parsed
		}
	}
	if !scopes.Covers(granted, a.requested) {
		f.logger.Warn("provider granted fewer scopes than requested",
			slog.String("requested", scopes.JoinScopes(a.requested)),
			slog.String("granted", scopes.JoinScopes(granted)))
	}

	rec := session.Record{
		ID:           uuid.NewString(),
		Account:      account,
		Scopes:       granted,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		CreatedAt:    f.now().UTC(),
		AttemptID:    a.id,
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry.UTC()
		rec.ExpiresAt = &exp
	}
	return rec
}

// contextError maps a finished context to ErrTimeout or ErrCancelled.
func contextError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return errors.Join(autherr.ErrTimeout, cause)
	}
	return errors.Join(autherr.ErrCancelled, cause)
}

// classify maps a run error to its terminal phase.
func classify(err error) Phase {
	switch {
	case errors.Is(err, autherr.ErrTimeout):
		return PhaseTimedOut
	case errors.Is(err, autherr.ErrCancelled):
		return PhaseCancelled
	case errors.Is(err, autherr.ErrCompletedOutOfBand):
		return PhaseCompletedElsewhere
	case autherr.IsExchangeFailed(err):
		return PhaseExchangeFailed
	case autherr.IsProtocol(err):
		return PhaseProviderError
	}
	return PhaseFailed
}
