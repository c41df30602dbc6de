// Package authflow runs the interactive OAuth 2.0 Authorization Code + PKCE
// sign-in against a loopback redirect.
//
// One RequestSession call walks the phases
//
//	Idle → ListenerStarting → AwaitingRedirect → CodeReceived → Exchanging →
//	FetchingIdentity → Persisting → Complete → Idle
//
// or leaves AwaitingRedirect/Exchanging early for TimedOut, Cancelled,
// ProviderError, ExchangeFailed, CompletedElsewhere or Failed. The listener is
// stopped on every exit.
//
// Three clocks bound a run: FlowTimeout caps the whole attempt,
// CodeWaitTimeout caps the browser round trip, and every PollInterval the
// session registry is checked for a matching session written by another
// process, which ends the wait with autherr.ErrCompletedOutOfBand.
//
// The flow refuses to start while another run is in progress
// (ErrFlowInProgress). Callers that need to share one attempt between many
// goroutines use package sessioncache.
package authflow
