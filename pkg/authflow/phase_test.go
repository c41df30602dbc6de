package authflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cloudauth/pkg/logger"
)

func TestPhaseTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhaseIdle, PhaseListenerStarting, true},
		{PhaseIdle, PhaseExchanging, false},
		{PhaseListenerStarting, PhaseAwaitingRedirect, true},
		{PhaseAwaitingRedirect, PhaseCodeReceived, true},
		{PhaseAwaitingRedirect, PhaseCompletedElsewhere, true},
		{PhaseAwaitingRedirect, PhasePersisting, false},
		{PhaseCodeReceived, PhaseExchanging, true},
		{PhaseExchanging, PhaseExchangeFailed, true},
		{PhaseExchanging, PhaseFetchingIdentity, true},
		{PhaseFetchingIdentity, PhasePersisting, true},
		{PhasePersisting, PhaseComplete, true},
		{PhaseComplete, PhaseIdle, true},
		{PhaseTimedOut, PhaseIdle, true},
		{PhaseTimedOut, PhaseAwaitingRedirect, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, allowed(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPhaseMachine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newPhaseMachine(logger.Discard())

	require.Equal(t, PhaseIdle, m.Current())
	require.NoError(t, m.begin(ctx))
	assert.ErrorIs(t, m.begin(ctx), ErrFlowInProgress)

	err := m.to(ctx, PhaseComplete)
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, PhaseListenerStarting, terr.From)
	assert.Equal(t, PhaseListenerStarting, m.Current())

	require.NoError(t, m.to(ctx, PhaseAwaitingRedirect))
	m.finish(ctx, PhaseCancelled)
	assert.Equal(t, PhaseIdle, m.Current())
	require.NoError(t, m.begin(ctx))
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.Equal(t, PhaseFailed, classify(ErrMissingClientID))
	assert.True(t, PhaseComplete.Terminal())
	assert.False(t, PhaseExchanging.Terminal())
}
