package domain

// Provider identifies a supported OAuth provider.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderGitHub || p == ProviderGoogle
}

// Identity is the normalized, provider-independent result of a successful
// authorization-code exchange. Email is non-empty and asserted verified by
// the provider; an exchange that cannot produce a verified email fails
// instead of producing a degraded identity.
type Identity struct {
	Provider       Provider `json:"provider"`
	ProviderUserID string   `json:"provider_user_id"`
	Email          string   `json:"email"`
	DisplayName    string   `json:"display_name"`
	AvatarURL      string   `json:"avatar_url,omitempty"`
}
