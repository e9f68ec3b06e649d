// Package provider encapsulates each OAuth provider's endpoint shapes so the
// rest of the flow stays provider-agnostic.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// Credentials holds one provider's OAuth client registration. ClientSecret
// never leaves this process; it is only ever sent server-to-server on the
// token exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured reports whether a real client ID is present. Placeholder values
// from an unfilled env file ("your_github_client_id" style) count as absent,
// so callers can disable the flow instead of attempting and failing it.
func (c Credentials) Configured() bool {
	id := strings.ToLower(c.ClientID)
	return id != "" && !strings.HasPrefix(id, "your_")
}

// Token is the opaque result of a successful code exchange. No refresh token
// is retained; the access token is used once to fetch the profile.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Profile carries a provider's raw user payloads, before normalization.
// Exactly one provider branch is populated.
type Profile struct {
	GitHubUser   *GitHubUser   `json:"-"`
	GitHubEmails []GitHubEmail `json:"-"`
	GoogleUser   *GoogleUser   `json:"-"`
}

// Adapter is the per-provider translation layer between the generic flow and
// a specific OAuth2 implementation's URL and payload conventions.
// Implementations return identity facts only and make no auth decisions.
type Adapter interface {
	// Name returns the provider identifier.
	Name() domain.Provider

	// Configured reports whether the adapter has real credentials.
	Configured() bool

	// AuthCodeURL builds the provider's authorize URL for the given state.
	// The nonce is only meaningful to providers that accept one.
	AuthCodeURL(state, nonce string) string

	// Exchange swaps the authorization code for an access token. The
	// redirectURI must match the one used on the authorize step
	// byte-for-byte; when empty, the configured redirect URL is used.
	// Failures come back as *domain.FlowError with the kind decided here,
	// at the boundary that parses the provider's raw response.
	Exchange(ctx context.Context, code, redirectURI string) (Token, error)

	// FetchProfile reads the provider's user endpoints with the given
	// access token and returns the raw payloads.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry holds the configured adapters and allows lookup by name.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

// NewRegistry registers the given adapters by name.
func NewRegistry(list ...Adapter) *Registry {
	m := make(map[domain.Provider]Adapter, len(list))
	for _, a := range list {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for name, or ErrNotFound for unknown providers.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[domain.Provider(name)]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider %q: %w", name, domain.ErrNotFound)
	}
	return a, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []domain.Provider {
	names := make([]domain.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
