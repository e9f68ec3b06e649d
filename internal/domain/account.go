package domain

import "time"

// Login pairs an account with a provider identity it can log in through.
type Login struct {
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	LinkedAt       time.Time `json:"linked_at"`
}

// Account is the local user record reconciled from one or more provider
// identities. Email is the merge key: the same address seen through a new
// provider links that provider to the existing account rather than creating
// a second one.
type Account struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Logins      []Login   `json:"logins"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LinkedTo reports whether the account already has a login for provider and
// returns the provider-scoped user ID if so.
func (a *Account) LinkedTo(provider Provider) (string, bool) {
	for _, l := range a.Logins {
		if l.Provider == provider {
			return l.ProviderUserID, true
		}
	}
	return "", false
}
