// Package cloudauth signs a user in to Google Cloud, or any OAuth2 provider
// with the same endpoint shapes, and keeps the resulting sessions.
//
// Sign-in uses the Authorization Code flow with PKCE. A loopback listener on
// 127.0.0.1 receives the redirect, the code is exchanged for tokens and the
// user's identity is looked up. Sessions are sealed with AES-GCM and kept in
// a secret store: the OS keyring, a directory of files, Redis, or memory.
//
// Basic usage:
//
//	cfg, err := cloudauth.LoadConfig()
//	if err != nil {
//		return err
//	}
//	m, err := cloudauth.New(ctx, cfg, cloudauth.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	rec, err := m.Session(ctx) // opens the browser only when needed
//	if err != nil {
//		return err
//	}
//	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
//
// Concurrent Session calls share a single sign-in. Cancelling a caller's
// context abandons that caller's wait; the sign-in itself is cancelled only
// when every waiter has gone.
//
// Changes are published as events:
//
//	sub := m.Subscribe(ctx)
//	defer sub.Close()
//	for ch := range sub.Receive() {
//		log.Info("sessions changed", "kind", ch.Kind, "count", len(ch.Sessions))
//	}
//
// The building blocks live under pkg/ and can be used on their own.
package cloudauth
