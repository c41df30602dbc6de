package authflow

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/cloudauth/pkg/logger"
)

// Phase is a step of the sign-in state machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseListenerStarting   Phase = "listener-starting"
	PhaseAwaitingRedirect   Phase = "awaiting-redirect"
	PhaseCodeReceived       Phase = "code-received"
	PhaseExchanging         Phase = "exchanging"
	PhaseFetchingIdentity   Phase = "fetching-identity"
	PhasePersisting         Phase = "persisting"
	PhaseComplete           Phase = "complete"
	PhaseTimedOut           Phase = "timed-out"
	PhaseCancelled          Phase = "cancelled"
	PhaseProviderError      Phase = "provider-error"
	PhaseExchangeFailed     Phase = "exchange-failed"
	PhaseCompletedElsewhere Phase = "completed-elsewhere"
	PhaseFailed             Phase = "failed"
)

func (p Phase) String() string { return string(p) }

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseTimedOut, PhaseCancelled, PhaseProviderError,
		PhaseExchangeFailed, PhaseCompletedElsewhere, PhaseFailed:
		return true
	}
	return false
}

var aborts = []Phase{PhaseTimedOut, PhaseCancelled, PhaseFailed}

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseListenerStarting},
	PhaseListenerStarting: append([]Phase{PhaseAwaitingRedirect}, aborts...),
	PhaseAwaitingRedirect: append([]Phase{PhaseCodeReceived, PhaseProviderError, PhaseCompletedElsewhere}, aborts...),
	PhaseCodeReceived:     {PhaseExchanging},
	PhaseExchanging:       append([]Phase{PhaseFetchingIdentity, PhaseExchangeFailed, PhaseProviderError}, aborts...),
	PhaseFetchingIdentity: append([]Phase{PhasePersisting}, aborts...),
	PhasePersisting:       {PhaseComplete, PhaseFailed},
}

func allowed(from, to Phase) bool {
	if from.Terminal() {
		return to == PhaseIdle
	}
	return slices.Contains(transitions[from], to)
}

// phaseMachine tracks the current phase and validates every change.
type phaseMachine struct {
	mu      sync.RWMutex
	current Phase
	logger  *slog.Logger
}

func newPhaseMachine(l *slog.Logger) *phaseMachine {
	return &phaseMachine{current: PhaseIdle, logger: l}
}

func (m *phaseMachine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// begin moves Idle to ListenerStarting, failing if a run is active.
func (m *phaseMachine) begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != PhaseIdle {
		return ErrFlowInProgress
	}
	m.set(ctx, PhaseListenerStarting)
	return nil
}

func (m *phaseMachine) to(ctx context.Context, next Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed(m.current, next) {
		err := &InvalidTransitionError{From: m.current, To: next}
		m.logger.ErrorContext(ctx, "rejected phase transition", logger.Error(err))
		return err
	}
	m.set(ctx, next)
	return nil
}

// finish records the outcome, if it is not already current, then returns to Idle.
func (m *phaseMachine) finish(ctx context.Context, outcome Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != outcome && allowed(m.current, outcome) {
		m.set(ctx, outcome)
	}
	m.set(ctx, PhaseIdle)
}

func (m *phaseMachine) set(ctx context.Context, next Phase) {
	m.logger.DebugContext(ctx, "phase", slog.String("from", string(m.current)), logger.Phase(next))
	m.current = next
}
