// Package callback runs the loopback HTTP listener that receives the OAuth
// authorization redirect.
//
// The listener binds 127.0.0.1, walking up from the preferred port when it is
// taken, and serves only GET and OPTIONS on /callback. A sign-in attempt
// registers the single pending Exchange with Expect(nonce); a redirect whose
// state matches the nonce resolves it with the authorization code, and a
// redirect carrying an error parameter rejects it with an
// autherr.ProtocolError. Redirects with a foreign or missing state get a 400
// and leave the exchange pending.
//
//	l := callback.New(cfg)
//	if err := l.Start(ctx, 8085); err != nil { ... }
//	defer l.Stop(context.Background())
//	ex, _ := l.Expect(nonce)
//	code, err := ex.Wait(ctx)
//
// Start and Stop are idempotent. Stop rejects a pending exchange with
// autherr.ErrListenerStopped and gives in-flight requests ShutdownGrace to
// finish before the server is closed outright.
package callback
