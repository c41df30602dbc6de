package cloudauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/dmitrymomot/cloudauth"
	"github.com/dmitrymomot/cloudauth/pkg/authflow"
	"github.com/dmitrymomot/cloudauth/pkg/callback"
	"github.com/dmitrymomot/cloudauth/pkg/config"
	"github.com/dmitrymomot/cloudauth/pkg/events"
	"github.com/dmitrymomot/cloudauth/pkg/pkce"
	"github.com/dmitrymomot/cloudauth/pkg/secrets"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
	"github.com/dmitrymomot/cloudauth/pkg/sessionstore"
)

// idp fakes the provider's token and userinfo endpoints and plays the
// browser by replaying an approving redirect.
type idp struct {
	srv       *httptest.Server
	mu        sync.Mutex
	challenge string
	opened    atomic.Int32
	exchanges atomic.Int32
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	p := &idp{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.exchanges.Add(1)
		_ = r.ParseForm()
		p.mu.Lock()
		ok := pkce.Verify(r.PostForm.Get("code_verifier"), p.challenge)
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok || r.PostForm.Get("code") != "code-1" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/userinfo.email",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-1", "email": "Ada@Example.com", "name": "Ada"})
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *idp) browser(raw string) error {
	p.opened.Add(1)
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	q := u.Query()
	p.mu.Lock()
	p.challenge = q.Get("code_challenge")
	p.mu.Unlock()

	target := strings.Replace(q.Get("redirect_uri"), "localhost", "127.0.0.1", 1)
	resp, err := http.Get(target + "?" + url.Values{"code": {"code-1"}, "state": {q.Get("state")}}.Encode())
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (p *idp) config() cloudauth.Config {
	return cloudauth.Config{
		Auth: authflow.Config{
			ClientID:        "client-1",
			AuthURL:         p.srv.URL + "/auth",
			TokenURL:        p.srv.URL + "/token",
			UserInfoURL:     p.srv.URL + "/userinfo",
			Scopes:          []string{"cloud-platform", "email"},
			FlowTimeout:     5 * time.Second,
			CodeWaitTimeout: 3 * time.Second,
			PollInterval:    time.Second,
			OpenBrowser:     true,
		},
		Callback: callback.Config{ShutdownGrace: 200 * time.Millisecond},
		Store:    secretstore.Config{Backend: secretstore.BackendMemory},
	}
}

func newManager(t *testing.T, p *idp, backend secretstore.Store, opts ...cloudauth.Option) *cloudauth.Manager {
	t.Helper()
	opts = append([]cloudauth.Option{
		cloudauth.WithBackend(backend),
		cloudauth.WithBrowser(p.browser),
		cloudauth.WithHTTPClient(p.srv.Client()),
	}, opts...)
	m, err := cloudauth.New(context.Background(), p.config(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSessionSignsInOnceAndCaches(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	m := newManager(t, p, secretstore.NewMemory())
	ctx := context.Background()

	const callers = 4
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := m.Session(ctx)
			assert.NoError(t, err)
			ids[i] = rec.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), p.opened.Load())
	assert.Equal(t, int32(1), p.exchanges.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	rec, err := m.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], rec.ID)
	assert.Equal(t, "ada@example.com", rec.Account.Label)
	assert.Equal(t, int32(1), p.opened.Load(), "cached session needs no browser")
}

func TestSessionsAreSealedAtRest(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	backend := secretstore.NewMemory()
	m := newManager(t, p, backend)
	ctx := context.Background()

	_, err := m.Session(ctx)
	require.NoError(t, err)

	raw, ok, err := backend.Get(ctx, sessionstore.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "at-1")

	encoded, ok, err := backend.Get(ctx, cloudauth.MasterKeyName)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = secrets.DecodeKey(encoded)
	assert.NoError(t, err)
}

func TestSessionsSurviveRestart(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	backend := secretstore.NewMemory()
	ctx := context.Background()

	first := newManager(t, p, backend)
	rec, err := first.Session(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newManager(t, p, backend)
	got, err := second.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int32(1), p.opened.Load())
	assert.Len(t, second.Sessions(ctx, "cloud-platform"), 1)
	assert.Empty(t, second.Sessions(ctx, "bigquery"))
}

func TestSignInAlwaysAddsSession(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	m := newManager(t, p, secretstore.NewMemory())
	ctx := context.Background()

	a, err := m.Session(ctx)
	require.NoError(t, err)
	b, err := m.SignIn(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, m.Sessions(ctx), 2)
	assert.Equal(t, authflow.PhaseIdle, m.Phase())
}

func TestSignOutPublishesAndForgets(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	m := newManager(t, p, secretstore.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := m.Session(ctx)
	require.NoError(t, err)

	sub := m.Subscribe(ctx)
	defer sub.Close()

	assert.False(t, m.SignOut(ctx, "unknown-id"))
	assert.True(t, m.SignOut(ctx, rec.ID))

	select {
	case ch := <-sub.Receive():
		assert.Equal(t, events.SessionRemoved, ch.Kind)
		assert.True(t, ch.Contains(rec.ID))
	case <-time.After(2 * time.Second):
		t.Fatal("no session-removed event")
	}
	assert.Empty(t, m.Sessions(ctx))

	again, err := m.Session(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, again.ID)
	assert.Equal(t, int32(2), p.opened.Load())

	removed := m.SignOutAll(ctx)
	assert.Len(t, removed, 1)
	assert.Empty(t, m.Sessions(ctx))
}

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	reg := prometheus.NewRegistry()
	m := newManager(t, p, secretstore.NewMemory(), cloudauth.WithMetrics(reg))

	_, err := m.Session(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cloudauth_signin_attempts_total")
}

func TestNewErrors(t *testing.T) {
	t.Parallel()
	p := newIDP(t)

	t.Run("bad encryption key", func(t *testing.T) {
		t.Parallel()
		cfg := p.config()
		cfg.EncryptionKey = "not-a-key"
		_, err := cloudauth.New(context.Background(), cfg)
		assert.ErrorIs(t, err, cloudauth.ErrInvalidKey)
	})

	t.Run("missing client id", func(t *testing.T) {
		t.Parallel()
		cfg := p.config()
		cfg.Auth.ClientID = ""
		_, err := cloudauth.New(context.Background(), cfg)
		assert.ErrorIs(t, err, authflow.ErrMissingClientID)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()
		cfg := p.config()
		cfg.Store.Backend = "floppy"
		_, err := cloudauth.New(context.Background(), cfg)
		assert.ErrorIs(t, err, secretstore.ErrUnknownBackend)
	})
}

func TestConfiguredKeyIsUsed(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	cfg := p.config()
	cfg.EncryptionKey = secrets.EncodeKey(key)
	backend := secretstore.NewMemory()
	m, err := cloudauth.New(context.Background(), cfg,
		cloudauth.WithBackend(backend),
		cloudauth.WithBrowser(p.browser),
		cloudauth.WithHTTPClient(p.srv.Client()),
	)
	require.NoError(t, err)
	defer m.Close()

	_, ok, err := backend.Get(context.Background(), cloudauth.MasterKeyName)
	require.NoError(t, err)
	assert.False(t, ok, "no key is generated when one is configured")
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	p := newIDP(t)
	m := newManager(t, p, secretstore.NewMemory())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	_, err := m.Session(context.Background())
	assert.ErrorIs(t, err, cloudauth.ErrClosed)
	_, err = m.SignIn(context.Background())
	assert.ErrorIs(t, err, cloudauth.ErrClosed)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	cfg, err := cloudauth.LoadConfig(config.WithEnvironment(map[string]string{
		"CLOUDAUTH_CLIENT_ID":       "id-1",
		"CLOUDAUTH_STORE_BACKEND":   "redis",
		"CLOUDAUTH_STORE_REDIS_URL": "redis://cache:6379/2",
		"CLOUDAUTH_CALLBACK_PORT":   "9001",
		"CLOUDAUTH_SCOPES":          "cloud-platform,bigquery",
	}))
	require.NoError(t, err)

	assert.Equal(t, "id-1", cfg.Auth.ClientID)
	assert.Equal(t, []string{"cloud-platform", "bigquery"}, cfg.Auth.Scopes)
	assert.Equal(t, 9001, cfg.Auth.CallbackPort)
	assert.Equal(t, 10, cfg.Callback.MaxPortAttempts)
	assert.Equal(t, secretstore.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Store.RedisURL)
	assert.Equal(t, "cloudauth", cfg.Store.Service)
	assert.Equal(t, 5*time.Minute, cfg.Auth.FlowTimeout)
}

// Not parallel: keyring.MockInit swaps a package-global provider.
func TestKeyKeptOutOfFileStore(t *testing.T) {
	p := newIDP(t)
	ctx := context.Background()

	fileConfig := func(t *testing.T) (cloudauth.Config, *secretstore.File) {
		t.Helper()
		cfg := p.config()
		cfg.Store = secretstore.Config{Backend: secretstore.BackendFile, Dir: t.TempDir(), Service: "cloudauth-test"}
		files, err := secretstore.NewFile(cfg.Store.Dir)
		require.NoError(t, err)
		return cfg, files
	}
	open := func(t *testing.T, cfg cloudauth.Config) {
		t.Helper()
		m, err := cloudauth.New(ctx, cfg, cloudauth.WithBrowser(p.browser), cloudauth.WithHTTPClient(p.srv.Client()))
		require.NoError(t, err)
		require.NoError(t, m.Close())
	}

	t.Run("generated key goes to the keyring", func(t *testing.T) {
		keyring.MockInit()
		cfg, files := fileConfig(t)
		open(t, cfg)

		stored, err := keyring.Get("cloudauth-test", cloudauth.MasterKeyName)
		require.NoError(t, err)
		_, err = secrets.DecodeKey(stored)
		require.NoError(t, err)

		_, ok, err := files.Get(ctx, cloudauth.MasterKeyName)
		require.NoError(t, err)
		assert.False(t, ok, "key must not sit next to the sessions")
	})

	t.Run("key left in the file store is moved", func(t *testing.T) {
		keyring.MockInit()
		cfg, files := fileConfig(t)
		key, err := secrets.GenerateKey()
		require.NoError(t, err)
		encoded := secrets.EncodeKey(key)
		require.NoError(t, files.Set(ctx, cloudauth.MasterKeyName, encoded))

		open(t, cfg)

		stored, err := keyring.Get("cloudauth-test", cloudauth.MasterKeyName)
		require.NoError(t, err)
		assert.Equal(t, encoded, stored)
		_, ok, err := files.Get(ctx, cloudauth.MasterKeyName)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unavailable keyring falls back to the file store", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("no secret service"))
		t.Cleanup(keyring.MockInit)
		cfg, files := fileConfig(t)
		open(t, cfg)

		_, ok, err := files.Get(ctx, cloudauth.MasterKeyName)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("explicit key backend does not fall back", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("no secret service"))
		t.Cleanup(keyring.MockInit)
		cfg, _ := fileConfig(t)
		cfg.KeyBackend = secretstore.BackendKeyring

		_, err := cloudauth.New(ctx, cfg, cloudauth.WithBrowser(p.browser))
		assert.ErrorIs(t, err, cloudauth.ErrInvalidKey)
	})
}
