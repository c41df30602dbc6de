package scopes

import (
	"slices"
	"strings"
)

const (
	// ScopeSeparator is used to join scopes for the authorization URL.
	ScopeSeparator = " "

	// ScopeWildcard in a granted set covers every requested scope.
	ScopeWildcard = "*"

	// GooglePrefix is the common prefix of fully qualified Google API scopes.
	GooglePrefix = "https://www.googleapis.com/auth/"
)

// aliases maps provider spellings to the short name a caller would request.
var aliases = map[string]string{
	"userinfo.email":   "email",
	"userinfo.profile": "profile",
}

// ParseScopes splits a space or comma separated string into scopes.
//
// Trims spaces, drops empty entries and returns nil for empty input.
//
// Example:
//
//	scopes.ParseScopes("openid email, cloud-platform")
//	// Returns: []string{"openid", "email", "cloud-platform"}
func ParseScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// JoinScopes joins scopes with a single space, as the authorization endpoint expects.
func JoinScopes(scopes []string) string {
	if len(scopes) == 0 {
		return ""
	}
	return strings.Join(scopes, ScopeSeparator)
}

// Canonical folds the different spellings of one scope to a single form.
//
//	Canonical("https://www.googleapis.com/auth/cloud-platform") // "cloud-platform"
//	Canonical("https://www.googleapis.com/auth/userinfo.email") // "email"
func Canonical(scope string) string {
	scope = strings.TrimSpace(scope)
	scope = strings.TrimPrefix(scope, GooglePrefix)
	if alias, ok := aliases[scope]; ok {
		return alias
	}
	return scope
}

// Qualify expands a short Google scope name to its full URL. Scopes that are
// already URLs and the OpenID Connect names are returned unchanged.
func Qualify(scope string) string {
	scope = strings.TrimSpace(scope)
	switch {
	case scope == "", strings.Contains(scope, "://"):
		return scope
	case scope == "openid", scope == "email", scope == "profile":
		return scope
	}
	return GooglePrefix + scope
}

// QualifyAll applies Qualify to each scope.
func QualifyAll(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = Qualify(s)
	}
	return out
}

// HasScope reports whether granted contains scope, comparing canonical forms.
func HasScope(granted []string, scope string) bool {
	want := Canonical(scope)
	for _, s := range granted {
		if s == ScopeWildcard || Canonical(s) == want {
			return true
		}
	}
	return false
}

// Covers reports whether granted is a superset of requested.
//
// Returns true if requested is empty or granted holds the wildcard.
func Covers(granted, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	if len(granted) == 0 {
		return false
	}
	if slices.Contains(granted, ScopeWildcard) {
		return true
	}
	for _, req := range requested {
		if !HasScope(granted, req) {
			return false
		}
	}
	return true
}

// Normalize canonicalizes, deduplicates and sorts scopes. Returns nil for empty input.
//
// Example:
//
//	scopes.Normalize([]string{"email", "https://www.googleapis.com/auth/userinfo.email", "bigquery"})
//	// Returns: []string{"bigquery", "email"}
func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if c := Canonical(s); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
