package async_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cloudauth/pkg/async"
)

func TestGo(t *testing.T) {
	t.Parallel()

	f := async.Go(context.Background(), func(context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "ok", nil
	})
	got, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.True(t, f.IsComplete())
}

func TestErrorPropagation(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	f := async.Go(context.Background(), func(context.Context) (int, error) {
		return 0, boom
	})
	_, err := f.Await()
	assert.ErrorIs(t, err, boom)
}

func TestPreCancelledContextSkipsWork(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	f := async.Go(ctx, func(context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	_, err := f.Await()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestManyWaitersShareResult(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	f := async.Go(context.Background(), func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = f.Await()
		}()
	}
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, 7, r)
	}
}

func TestAwaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := async.Go(context.Background(), func(context.Context) (string, error) {
		<-release
		return "done", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.AwaitContext(ctx)
	assert.ErrorIs(t, err, async.ErrAbandoned)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.IsComplete(), "abandoning must not complete the future")

	close(release)
	got, err := f.AwaitContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestAwaitContextPrefersCompletedResult(t *testing.T) {
	t.Parallel()

	f := async.Go(context.Background(), func(context.Context) (int, error) { return 3, nil })
	<-f.Done()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.AwaitContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestDone(t *testing.T) {
	t.Parallel()

	f := async.Go(context.Background(), func(context.Context) (int, error) { return 0, nil })
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}
}
