// Package async provides a generic Future for sharing the result of one
// goroutine between many waiters.
//
// Go starts the computation and returns immediately. Waiters call Await or
// AwaitContext; the latter lets a single waiter give up without affecting the
// computation or the other waiters:
//
//	f := async.Go(ctx, func(ctx context.Context) (Token, error) {
//	    return signIn(ctx)
//	})
//	tok, err := f.AwaitContext(requestCtx)
//	if errors.Is(err, async.ErrAbandoned) {
//	    // this caller stopped waiting; f still completes
//	}
//
// Done exposes completion for select, e.g. to wait for a superseded run.
//
// A context that is already done when Go is called completes the Future
// with the context error without running the function.
package async
