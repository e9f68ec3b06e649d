// Package account reconciles canonical identities into local accounts.
// Email is the merge key: a provider-id mismatch on the same email means
// "same person, additional linked provider", never an error.
package account

import (
	"context"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// Store is the user-store collaborator the exchange flow hands identities
// to. The core's job ends at producing the identity; reconciling it into
// zero-or-one accounts happens here.
type Store interface {
	// FindByEmail returns the account for email, or domain.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)

	// FindByProvider returns the account linked to the given provider
	// identity, or domain.ErrNotFound.
	FindByProvider(ctx context.Context, p domain.Provider, providerUserID string) (*domain.Account, error)

	// Reconcile folds a canonical identity into the store: it creates an
	// account for an unseen email, links an additional provider to an
	// existing account on the same email, and refreshes display name and
	// avatar either way.
	Reconcile(ctx context.Context, id *domain.Identity) (*domain.Account, error)
}
