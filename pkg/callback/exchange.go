package callback

import (
	"context"
	"sync"
)

// Result is the outcome of a pending exchange: a code or an error.
type Result struct {
	Code string
	Err  error
}

// Exchange correlates one authorization request with its redirect.
type Exchange struct {
	nonce  string
	result chan Result
	once   sync.Once
	owner  *Listener
}

func newExchange(nonce string, owner *Listener) *Exchange {
	return &Exchange{
		nonce:  nonce,
		result: make(chan Result, 1),
		owner:  owner,
	}
}

// Nonce returns the state value the redirect must echo.
func (e *Exchange) Nonce() string {
	return e.nonce
}

// Result delivers exactly one Result once the exchange settles. It never
// delivers after Cancel.
func (e *Exchange) Result() <-chan Result {
	return e.result
}

// Wait blocks until the exchange settles or ctx is done.
func (e *Exchange) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-e.result:
		return r.Code, r.Err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

// Cancel clears the exchange from its listener without settling it.
func (e *Exchange) Cancel() {
	e.once.Do(func() {
		e.owner.clear(e)
	})
}

func (e *Exchange) settle(r Result) bool {
	settled := false
	e.once.Do(func() {
		e.result <- r
		settled = true
	})
	return settled
}
