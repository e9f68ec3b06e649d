// Package identity maps provider-specific profile payloads into the one
// canonical identity shape.
package identity

import (
	"strconv"
	"strings"

	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/provider"
)

// Normalize turns a raw provider profile into a canonical identity. It fails
// rather than produce an identity without a provider-verified email.
func Normalize(p *provider.Profile) (*domain.Identity, error) {
	switch {
	case p.GitHubUser != nil:
		return normalizeGitHub(p.GitHubUser, p.GitHubEmails)
	case p.GoogleUser != nil:
		return normalizeGoogle(p.GoogleUser)
	default:
		return nil, domain.NewFlowError(domain.KindProfileFetchFailed,
			"profile carries no provider payload")
	}
}

// normalizeGitHub selects the email by priority: the primary verified email,
// then any verified email, then the profile's public email field.
func normalizeGitHub(user *provider.GitHubUser, emails []provider.GitHubEmail) (*domain.Identity, error) {
	email := ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			email = e.Email
			break
		}
		if e.Verified && email == "" {
			email = e.Email
		}
	}
	if email == "" {
		email = user.Email
	}
	if email == "" {
		return nil, domain.NewFlowError(domain.KindNoVerifiedEmail,
			"github user %s exposes no verified email", user.Login)
	}

	displayName := user.Name
	if displayName == "" {
		displayName = user.Login
	}

	return &domain.Identity{
		Provider:       domain.ProviderGitHub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          normalizeEmail(email),
		DisplayName:    displayName,
		AvatarURL:      user.AvatarURL,
	}, nil
}

// normalizeGoogle trusts the single email only when the provider marks it
// verified; there is no fallback to an unverified address.
func normalizeGoogle(user *provider.GoogleUser) (*domain.Identity, error) {
	if user.Email == "" {
		return nil, domain.NewFlowError(domain.KindNoVerifiedEmail,
			"google userinfo carries no email")
	}
	if !user.VerifiedEmail {
		return nil, domain.NewFlowError(domain.KindEmailNotVerified,
			"google reports email as unverified")
	}

	return &domain.Identity{
		Provider:       domain.ProviderGoogle,
		ProviderUserID: user.ID,
		Email:          normalizeEmail(user.Email),
		DisplayName:    user.Name,
		AvatarURL:      user.Picture,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
