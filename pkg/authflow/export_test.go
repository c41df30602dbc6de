package authflow

import (
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/cloudauth/pkg/session"
)

func AttemptCount(m *Metrics, outcome Phase) float64 {
	return testutil.ToFloat64(m.attempts.WithLabelValues(string(outcome)))
}

func InFlight(m *Metrics) float64 {
	return testutil.ToFloat64(m.inFlight)
}

func AccountFromIDToken(token *oauth2.Token) (session.Account, error) {
	return accountFromIDToken(token)
}
