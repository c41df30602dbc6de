// Package pkce implements the client side of RFC 7636 Proof Key for Code Exchange.
//
// A verifier is 32 random bytes encoded with base64url without padding, which
// always yields 43 characters. The challenge is the base64url encoded SHA-256
// digest of the verifier (method S256). DeriveChallenge is a pure function so
// a fixed verifier always produces the same challenge.
//
// # Usage
//
//	pair, err := pkce.New()
//	if err != nil {
//	    // entropy source unavailable, abort before any network call
//	}
//	authURL := conf.AuthCodeURL(state,
//	    oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
//	    oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
//	)
//	// later
//	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(pair.Verifier))
//
// # Errors
//
// The only failure mode is ErrEntropyUnavailable, joined with the underlying
// crypto/rand error.
package pkce
