package sessioncache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cloudauth/pkg/autherr"
	"github.com/dmitrymomot/cloudauth/pkg/registry"
	"github.com/dmitrymomot/cloudauth/pkg/secretstore"
	"github.com/dmitrymomot/cloudauth/pkg/session"
	"github.com/dmitrymomot/cloudauth/pkg/sessioncache"
	"github.com/dmitrymomot/cloudauth/pkg/sessionstore"
)

var scopes = []string{"cloud-platform", "email"}

func record(id string, s ...string) session.Record {
	if len(s) == 0 {
		s = scopes
	}
	return session.Record{
		ID:          id,
		Account:     session.Account{ID: id, Label: id + "@example.com"},
		Scopes:      s,
		AccessToken: "at-" + id,
		CreatedAt:   time.Now().UTC(),
	}
}

func newRegistry() *registry.Registry {
	return registry.New(sessionstore.New(secretstore.NewMemory()))
}

// blockingFlow persists a session once released, counting runs. On
// cancellation it holds on for teardown, like a listener shutting down.
type blockingFlow struct {
	reg      *registry.Registry
	release  chan struct{}
	teardown time.Duration
	runs     atomic.Int32
	active   atomic.Int32
	peak     atomic.Int32
	err      error
}

func (f *blockingFlow) RequestSession(ctx context.Context, _ []string) (session.Record, error) {
	n := f.runs.Add(1)
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	select {
	case <-f.release:
	case <-ctx.Done():
		time.Sleep(f.teardown)
		return session.Record{}, errors.Join(autherr.ErrCancelled, ctx.Err())
	}
	if f.err != nil {
		return session.Record{}, f.err
	}
	rec := record("flow-" + string(rune('0'+n)))
	if err := f.reg.AddSession(ctx, rec); err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

// flowMock is a testify mock for single-call expectations.
type flowMock struct {
	mock.Mock
}

func (m *flowMock) RequestSession(ctx context.Context, s []string) (session.Record, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(session.Record), args.Error(1)
}

func TestConcurrentCallersShareOneFlow(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	flow := &blockingFlow{reg: reg, release: make(chan struct{})}
	cache := sessioncache.New(flow, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	const callers = 5
	var wg sync.WaitGroup
	results := make([]session.Record, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cache.GetSession(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return flow.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(flow.release)
	wg.Wait()

	assert.EqualValues(t, 1, flow.runs.Load(), "exactly one flow run")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
}

func TestCachedSessionSkipsFlow(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Return(record("fresh"), nil).Once()
	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	first, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	second, err := cache.GetSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	m.AssertExpectations(t)
}

func TestStoredSessionIsReusedSilently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry()
	require.NoError(t, reg.AddSession(ctx, record("wrong-scope", "bigquery")))
	require.NoError(t, reg.AddSession(ctx, record("stored", "cloud-platform", "email", "openid")))

	m := &flowMock{}
	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	got, err := cache.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.ID)
	m.AssertNotCalled(t, "RequestSession", mock.Anything, mock.Anything)
}

func TestExpiredCachedSessionIsRefetched(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	now := time.Now()
	clock := atomic.Pointer[time.Time]{}
	clock.Store(&now)

	exp := now.Add(time.Minute)
	short := record("short")
	short.ExpiresAt = &exp

	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Return(short, nil).Once()
	m.On("RequestSession", mock.Anything, scopes).Return(record("next"), nil).Once()

	cache := sessioncache.New(m, reg, scopes, sessioncache.WithClock(func() time.Time { return *clock.Load() }))
	t.Cleanup(func() { _ = cache.Close() })

	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short", got.ID)

	later := now.Add(2 * time.Minute)
	clock.Store(&later)
	got, err = cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "next", got.ID)
	m.AssertExpectations(t)
}

func TestFlowErrorIsNotCached(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Return(session.Record{}, autherr.ErrTimeout).Once()
	m.On("RequestSession", mock.Anything, scopes).Return(record("ok"), nil).Once()
	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	_, err := cache.GetSession(context.Background())
	require.ErrorIs(t, err, autherr.ErrTimeout)

	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got.ID)
}

func TestCompletedOutOfBandRequeries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry()
	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Run(func(mock.Arguments) {
		_ = reg.AddSession(ctx, record("elsewhere"))
	}).Return(session.Record{}, autherr.ErrCompletedOutOfBand).Once()

	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	got, err := cache.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", got.ID)
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Return(record("one"), nil).Once()
	m.On("RequestSession", mock.Anything, scopes).Return(record("two"), nil).Once()
	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", got.ID)

	cache.ClearCache()
	got, err = cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", got.ID)
}

func TestRemovedSessionDropsCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry()
	require.NoError(t, reg.AddSession(ctx, record("a")))
	m := &flowMock{}
	cache := sessioncache.New(m, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	got, err := cache.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	require.NoError(t, reg.AddSession(ctx, record("b")))
	require.True(t, reg.RemoveSession(ctx, "a"))

	require.Eventually(t, func() bool {
		got, err := cache.GetSession(ctx)
		return err == nil && got.ID == "b"
	}, time.Second, 10*time.Millisecond)
	m.AssertNotCalled(t, "RequestSession", mock.Anything, mock.Anything)
}

func TestForget(t *testing.T) {
	t.Parallel()
	m := &flowMock{}
	m.On("RequestSession", mock.Anything, scopes).Return(record("one"), nil).Once()
	m.On("RequestSession", mock.Anything, scopes).Return(record("two"), nil).Once()
	cache := sessioncache.New(m, newRegistry(), scopes)
	t.Cleanup(func() { _ = cache.Close() })

	_, err := cache.GetSession(context.Background())
	require.NoError(t, err)

	cache.Forget("other")
	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", got.ID)

	cache.Forget("one")
	got, err = cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", got.ID)
	m.AssertExpectations(t)
}

func TestWaiterCanAbandon(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	flow := &blockingFlow{reg: reg, release: make(chan struct{})}
	cache := sessioncache.New(flow, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	patient := make(chan error, 1)
	go func() {
		_, err := cache.GetSession(context.Background())
		patient <- err
	}()
	require.Eventually(t, func() bool { return flow.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetSession(ctx)
	require.ErrorIs(t, err, autherr.ErrCancelled)

	close(flow.release)
	select {
	case err := <-patient:
		assert.NoError(t, err, "other waiters are unaffected")
	case <-time.After(time.Second):
		t.Fatal("patient waiter never returned")
	}
	assert.EqualValues(t, 1, flow.runs.Load())
}

func TestLastWaiterLeavingCancelsFlow(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	flow := &blockingFlow{reg: reg, release: make(chan struct{})}
	cache := sessioncache.New(flow, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := cache.GetSession(ctx)
	require.ErrorIs(t, err, autherr.ErrTimeout)

	// The abandoned run is cancelled, so a new caller starts a new run.
	require.Eventually(t, func() bool { return flow.active.Load() == 0 }, time.Second, 5*time.Millisecond)
	close(flow.release)
	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.EqualValues(t, 2, flow.runs.Load())
}

func TestRetryAfterAbandonWaitsForTeardown(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	flow := &blockingFlow{reg: reg, release: make(chan struct{}), teardown: 100 * time.Millisecond}
	cache := sessioncache.New(flow, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cache.GetSession(ctx)
		first <- err
	}()
	require.Eventually(t, func() bool { return flow.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-first, autherr.ErrCancelled)

	// Retry right away while the first run is still tearing down.
	close(flow.release)
	got, err := cache.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flow-2", got.ID)
	assert.EqualValues(t, 2, flow.runs.Load())
	assert.EqualValues(t, 1, flow.peak.Load(), "runs must not overlap")
}

func TestClearCacheWhileInFlight(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	flow := &blockingFlow{reg: reg, release: make(chan struct{})}
	cache := sessioncache.New(flow, reg, scopes)
	t.Cleanup(func() { _ = cache.Close() })

	type result struct {
		rec session.Record
		err error
	}
	detached := make(chan result, 1)
	go func() {
		rec, err := cache.GetSession(context.Background())
		detached <- result{rec, err}
	}()
	require.Eventually(t, func() bool { return flow.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	cache.ClearCache()
	next := make(chan result, 1)
	go func() {
		rec, err := cache.GetSession(context.Background())
		next <- result{rec, err}
	}()
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, flow.runs.Load(), "new run waits for the detached one")

	close(flow.release)
	d := <-detached
	require.NoError(t, d.err)
	n := <-next
	require.NoError(t, n.err)

	// The detached run persisted a session, so the next run reuses it.
	assert.Equal(t, d.rec.ID, n.rec.ID)
	assert.EqualValues(t, 1, flow.runs.Load())
	assert.EqualValues(t, 1, flow.peak.Load())
}
