package session

import (
	"slices"
	"time"

	"github.com/dmitrymomot/cloudauth/pkg/scopes"
)

// Placeholder account values used when the identity endpoint cannot be reached.
const (
	PlaceholderAccountID   = "unknown"
	PlaceholderAccountName = "Unknown User"
	PlaceholderLabel       = "unknown@unknown"
)

// Account identifies the user a session belongs to.
type Account struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	DisplayName string `json:"displayName"`
}

// PlaceholderAccount returns the sentinel account for degraded sign-ins.
func PlaceholderAccount() Account {
	return Account{
		ID:          PlaceholderAccountID,
		Label:       PlaceholderLabel,
		DisplayName: PlaceholderAccountName,
	}
}

// IsPlaceholder reports whether the account is the degraded-sign-in sentinel.
func (a Account) IsPlaceholder() bool {
	return a.ID == PlaceholderAccountID
}

// Record is one authenticated identity plus its granted scopes and tokens.
type Record struct {
	ID           string     `json:"id"`
	Account      Account    `json:"account"`
	Scopes       []string   `json:"scopes"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	TokenType    string     `json:"tokenType,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	AttemptID    string     `json:"attemptId,omitempty"`
}

// IsExpired reports whether the record expired at or before now.
func (r Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Covers reports whether the record's scopes are a superset of requested.
func (r Record) Covers(requested []string) bool {
	return scopes.Covers(r.Scopes, requested)
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return ErrMissingID
	case len(r.Scopes) == 0:
		return ErrMissingScopes
	case r.AccessToken == "":
		return ErrMissingAccessToken
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored slices or times.
func (r Record) Clone() Record {
	c := r
	c.Scopes = slices.Clone(r.Scopes)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}

// Equal compares two records by value.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Account != o.Account || r.AccessToken != o.AccessToken ||
		r.RefreshToken != o.RefreshToken || r.TokenType != o.TokenType ||
		r.AttemptID != o.AttemptID || !r.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	if (r.ExpiresAt == nil) != (o.ExpiresAt == nil) {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.Equal(*o.ExpiresAt) {
		return false
	}
	return slices.Equal(r.Scopes, o.Scopes)
}
