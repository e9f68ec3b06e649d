// Package state issues and verifies the single-use anti-CSRF tokens scoped
// to one login attempt.
package state

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/kv"
)

const (
	primaryKey = "oauth:state"
	backupKey  = "oauth:state:backup"
	nonceKey   = "oauth:nonce"

	// tokenBytes gives 256 bits of entropy, enough to rule out collisions
	// and brute force on the state parameter.
	tokenBytes = 32

	// ttl bounds how long an unconsumed attempt stays valid. Providers
	// expire unused authorization codes well before this anyway.
	ttl = 10 * time.Minute
)

// Store manages the single live AuthAttempt. Issuing a new attempt
// overwrites any leftover one, so a stale attempt can never validate a new
// callback. A backup copy shadows the primary so the attempt survives the
// primary entry being cleared mid-flow.
type Store struct {
	kv kv.Store
}

// New creates a Store over the given key-value backend.
func New(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Issue generates a fresh state and nonce pair and persists the state in
// both primary and backup slots. The nonce is round-tripped to the provider
// but deliberately never verified downstream: no ID token is requested in
// this flow.
func (s *Store) Issue(ctx context.Context) (state, nonce string, err error) {
	state, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}

	if err := s.kv.Set(ctx, primaryKey, state, ttl); err != nil {
		return "", "", fmt.Errorf("persist state: %w", err)
	}
	if err := s.kv.Set(ctx, backupKey, state, ttl); err != nil {
		return "", "", fmt.Errorf("persist state backup: %w", err)
	}
	if err := s.kv.Set(ctx, nonceKey, nonce, ttl); err != nil {
		return "", "", fmt.Errorf("persist nonce: %w", err)
	}
	return state, nonce, nil
}

// ConsumeAndVerify deletes the stored attempt and compares it with the
// received state. The delete happens before the comparison result is known:
// a state is single-use whether or not it matches. Fails closed with
// StateMissing when no copy survives, CsrfStateMismatch on any difference.
func (s *Store) ConsumeAndVerify(ctx context.Context, received string) error {
	stored, readErr := s.kv.Get(ctx, primaryKey)
	if errors.Is(readErr, kv.ErrNotFound) {
		stored, readErr = s.kv.Get(ctx, backupKey)
	}

	// Single use: drop every copy regardless of the outcome below.
	_ = s.kv.Delete(ctx, primaryKey)
	_ = s.kv.Delete(ctx, backupKey)
	_ = s.kv.Delete(ctx, nonceKey)

	if errors.Is(readErr, kv.ErrNotFound) {
		return domain.NewFlowError(domain.KindStateMissing,
			"no stored state for this attempt")
	}
	if readErr != nil {
		return fmt.Errorf("read state: %w", readErr)
	}

	if received == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(received)) != 1 {
		return domain.NewFlowError(domain.KindCsrfStateMismatch,
			"callback state does not match stored value")
	}
	return nil
}

// Clear drops any in-flight attempt, for abandonment paths where no
// callback will ever arrive.
func (s *Store) Clear(ctx context.Context) {
	_ = s.kv.Delete(ctx, primaryKey)
	_ = s.kv.Delete(ctx, backupKey)
	_ = s.kv.Delete(ctx, nonceKey)
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
