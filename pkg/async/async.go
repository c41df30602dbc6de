package async

import "context"

// Future represents the result of an asynchronous computation.
// A Future completes exactly once; every waiter observes the same result.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Go runs fn on a new goroutine and returns its Future.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		// Pre-cancelled contexts skip the work entirely.
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the computation completes.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the computation completes or ctx is done.
// Abandoning the wait does not stop the computation; other waiters still get
// the result. When ctx wins the returned error wraps ErrAbandoned and the
// context's cause.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
	}
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, &AbandonedError{Cause: context.Cause(ctx)}
	}
}

// Done returns a channel closed when the computation completes.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// IsComplete reports whether the computation has finished, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
