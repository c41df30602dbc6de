package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// IdentityFetcher resolves the account behind an access token.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, accessToken string) (session.Account, error)
}

// IdentityFetcherFunc adapts a function to IdentityFetcher.
type IdentityFetcherFunc func(ctx context.Context, accessToken string) (session.Account, error)

func (f IdentityFetcherFunc) FetchIdentity(ctx context.Context, accessToken string) (session.Account, error) {
	return f(ctx, accessToken)
}

// UserInfo calls an OpenID userinfo endpoint with a bearer token.
type UserInfo struct {
	URL    string
	Client *http.Client
}

type userInfoResponse struct {
	ID            string `json:"id"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (u UserInfo) FetchIdentity(ctx context.Context, accessToken string) (session.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return session.Account{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return session.Account{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return session.Account{}, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return session.Account{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return info.account()
}

func (r userInfoResponse) account() (session.Account, error) {
	id := r.ID
	if id == "" {
		id = r.Sub
	}
	if id == "" {
		return session.Account{}, fmt.Errorf("userinfo response has no account id")
	}

	label := strings.ToLower(strings.TrimSpace(r.Email))
	if label == "" {
		label = id
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = strings.TrimSpace(r.GivenName + " " + r.FamilyName)
	}
	if name == "" {
		name = label
	}
	return session.Account{ID: id, Label: label, DisplayName: name}, nil
}
