// Package flow drives one login attempt from redirect-return to a resolved
// identity or a typed failure.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/txopito/oauth-proxy/internal/account"
	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/identity"
	"github.com/txopito/oauth-proxy/internal/provider"
	"github.com/txopito/oauth-proxy/internal/state"
)

// ErrProviderNotConfigured is returned by Begin when the provider has no
// real client credentials; callers should surface a setup affordance, not
// attempt the flow.
var ErrProviderNotConfigured = errors.New("oauth provider is not configured")

// DefaultUpstreamTimeout bounds each outbound call (token exchange, profile
// fetch) so an attempt fails with UpstreamTimeout instead of hanging.
const DefaultUpstreamTimeout = 5 * time.Second

// maxRememberedAttempts caps the re-entrancy cache. Attempts are ephemeral;
// only enough history to absorb duplicate deliveries of recent callbacks is
// kept.
const maxRememberedAttempts = 16

// Result is the terminal outcome of one attempt: either an identity (and
// the account it reconciled into) or a failure.
type Result struct {
	Identity *domain.Identity
	Account  *domain.Account
	Err      error
}

// Orchestrator runs the callback state machine: Processing, then exactly one
// of Success or Error. No step is retried within an attempt; a retry is a
// fresh Begin with a brand-new state.
type Orchestrator struct {
	states   *state.Store
	registry *provider.Registry
	accounts account.Store
	timeout  time.Duration

	mu       sync.Mutex
	attempts map[string]*attempt
	order    []string
}

type attempt struct {
	done chan struct{}
	res  Result
}

// New creates an orchestrator. A zero timeout falls back to
// DefaultUpstreamTimeout.
func New(states *state.Store, registry *provider.Registry, accounts account.Store, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &Orchestrator{
		states:   states,
		registry: registry,
		accounts: accounts,
		timeout:  timeout,
		attempts: make(map[string]*attempt),
	}
}

// Begin starts a fresh attempt: issues a new state (overwriting any stale
// one) and returns the provider's authorize URL.
func (o *Orchestrator) Begin(ctx context.Context, providerName string) (string, error) {
	adapter, err := o.registry.Get(providerName)
	if err != nil {
		return "", err
	}
	if !adapter.Configured() {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, providerName)
	}

	st, nonce, err := o.states.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return adapter.AuthCodeURL(st, nonce), nil
}

// Abandon clears the in-flight attempt state, for flows the user walked
// away from. The provider-side code simply expires on its own.
func (o *Orchestrator) Abandon(ctx context.Context) {
	o.states.Clear(ctx)
}

// Callback resolves one redirect-return. Invoking it again with identical
// parameters is a no-op that observes the first result: the authorization
// code is single-use, and a second exchange would always fail and could
// mask the real first outcome.
func (o *Orchestrator) Callback(ctx context.Context, providerName string, query url.Values) Result {
	fingerprint := providerName + "?" + query.Encode()

	o.mu.Lock()
	if a, ok := o.attempts[fingerprint]; ok {
		o.mu.Unlock()
		<-a.done
		return a.res
	}
	a := &attempt{done: make(chan struct{})}
	o.remember(fingerprint, a)
	o.mu.Unlock()

	a.res = o.run(ctx, providerName, query)
	close(a.done)
	return a.res
}

// remember stores the attempt, evicting the oldest completed one when the
// cache is full. Caller holds o.mu.
func (o *Orchestrator) remember(fingerprint string, a *attempt) {
	if len(o.order) >= maxRememberedAttempts {
		for i, old := range o.order {
			prev := o.attempts[old]
			select {
			case <-prev.done:
				delete(o.attempts, old)
				o.order = append(o.order[:i], o.order[i+1:]...)
			default:
				continue
			}
			break
		}
	}
	o.attempts[fingerprint] = a
	o.order = append(o.order, fingerprint)
}

// run walks the gates in order; any failure short-circuits to a terminal
// error with a specific kind.
func (o *Orchestrator) run(ctx context.Context, providerName string, query url.Values) Result {
	adapter, err := o.registry.Get(providerName)
	if err != nil {
		return Result{Err: err}
	}

	// Gate 1-2: the provider reported an error on the authorize step. The
	// attempt is over; burn the stored state so it cannot validate a later
	// mis-timed callback.
	if errCode := query.Get("error"); errCode != "" {
		o.states.Clear(ctx)
		detail := query.Get("error_description")
		if detail == "" {
			detail = errCode
		}
		return o.fail(providerName, domain.NewFlowError(domain.KindProviderDenied, "%s", detail))
	}

	// Gate 3: both parameters must be present.
	code := query.Get("code")
	st := query.Get("state")
	if code == "" || st == "" {
		o.states.Clear(ctx)
		return o.fail(providerName, domain.NewFlowError(domain.KindMalformedCallback,
			"callback missing code or state"))
	}

	// Gate 4: single-use state verification, fail closed.
	if err := o.states.ConsumeAndVerify(ctx, st); err != nil {
		return o.fail(providerName, err)
	}

	// Gate 5: server-side code exchange, bounded.
	exCtx, cancel := context.WithTimeout(ctx, o.timeout)
	tok, err := adapter.Exchange(exCtx, code, "")
	cancel()
	if err != nil {
		return o.fail(providerName, err)
	}

	// Gate 6: raw profile fetch, bounded.
	pfCtx, cancel := context.WithTimeout(ctx, o.timeout)
	profile, err := adapter.FetchProfile(pfCtx, tok.AccessToken)
	cancel()
	if err != nil {
		return o.fail(providerName, err)
	}

	// Gate 7: normalization, verified email required.
	id, err := identity.Normalize(profile)
	if err != nil {
		return o.fail(providerName, err)
	}

	// Gate 8: reconcile into a local account.
	acc, err := o.accounts.Reconcile(ctx, id)
	if err != nil {
		return o.fail(providerName, fmt.Errorf("reconcile account: %w", err))
	}

	slog.Info("login succeeded",
		"provider", providerName,
		"provider_user_id", id.ProviderUserID,
		"account_id", acc.ID,
	)
	return Result{Identity: id, Account: acc}
}

// fail logs the full detail server-side; the handler layer surfaces only
// the kind-level message to clients.
func (o *Orchestrator) fail(providerName string, err error) Result {
	if kind, ok := domain.FlowKind(err); ok {
		slog.Warn("login attempt failed",
			"provider", providerName,
			"kind", string(kind),
			"detail", err.Error(),
		)
	} else {
		slog.Error("login attempt failed",
			"provider", providerName,
			"error", err,
		)
	}
	return Result{Err: err}
}
