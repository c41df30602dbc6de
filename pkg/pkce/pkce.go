package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/oauth2"
)

const (
	// MethodS256 is the only challenge method this package produces.
	MethodS256 = "S256"

	// VerifierLength is the encoded length of a 32-byte verifier.
	VerifierLength = 43

	entropyBytes = 32
)

// randReader is swapped in tests to simulate a broken entropy source.
var randReader io.Reader = rand.Reader

// Pair holds a verifier together with its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// New generates a fresh verifier and derives its S256 challenge.
func New() (Pair, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
		Method:    MethodS256,
	}, nil
}

// GenerateVerifier returns 32 cryptographically random bytes encoded as
// unpadded base64url (43 characters).
func GenerateVerifier() (string, error) {
	return randomString()
}

// GenerateNonce returns a random value suitable for the OAuth state parameter.
func GenerateNonce() (string, error) {
	return randomString()
}

// DeriveChallenge computes base64url(sha256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Verify reports whether challenge was derived from verifier.
func Verify(verifier, challenge string) bool {
	return len(verifier) >= VerifierLength && DeriveChallenge(verifier) == challenge
}

func randomString() (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", errors.Join(ErrEntropyUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
