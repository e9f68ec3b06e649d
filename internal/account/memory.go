package account

import (
	"context"
	"sync"
	"time"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// MemoryStore is an in-process Store: accounts keyed by email with a
// secondary provider-id index. It stands in for a persistent user store,
// which this service deliberately does not carry.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*domain.Account
	byLogin map[loginKey]string // provider identity -> email
	now     func() time.Time
}

type loginKey struct {
	provider       domain.Provider
	providerUserID string
}

// NewMemoryStore creates an empty account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		byEmail: make(map[string]*domain.Account),
		byLogin: make(map[loginKey]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *MemoryStore) FindByProvider(_ context.Context, p domain.Provider, providerUserID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.byLogin[loginKey{p, providerUserID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	acc, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *MemoryStore) Reconcile(_ context.Context, id *domain.Identity) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	acc, ok := s.byEmail[id.Email]
	if !ok {
		acc = &domain.Account{
			ID:        s.nextID,
			Email:     id.Email,
			CreatedAt: now,
		}
		s.nextID++
		s.byEmail[id.Email] = acc
	}

	if existing, linked := acc.LinkedTo(id.Provider); !linked {
		acc.Logins = append(acc.Logins, domain.Login{
			Provider:       id.Provider,
			ProviderUserID: id.ProviderUserID,
			LinkedAt:       now,
		})
		s.byLogin[loginKey{id.Provider, id.ProviderUserID}] = id.Email
	} else if existing != id.ProviderUserID {
		// The provider re-issued a different user ID for the same verified
		// email; trust the email as the merge key and move the link.
		delete(s.byLogin, loginKey{id.Provider, existing})
		for i := range acc.Logins {
			if acc.Logins[i].Provider == id.Provider {
				acc.Logins[i].ProviderUserID = id.ProviderUserID
				acc.Logins[i].LinkedAt = now
			}
		}
		s.byLogin[loginKey{id.Provider, id.ProviderUserID}] = id.Email
	}

	acc.DisplayName = id.DisplayName
	if id.AvatarURL != "" {
		acc.AvatarURL = id.AvatarURL
	}
	acc.UpdatedAt = now

	return copyAccount(acc), nil
}

func copyAccount(a *domain.Account) *domain.Account {
	out := *a
	out.Logins = append([]domain.Login(nil), a.Logins...)
	return &out
}
