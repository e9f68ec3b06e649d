package flow

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/txopito/oauth-proxy/internal/account"
	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/kv"
	"github.com/txopito/oauth-proxy/internal/provider"
	"github.com/txopito/oauth-proxy/internal/state"
)

// fakeAdapter counts calls and serves canned payloads.
type fakeAdapter struct {
	name          domain.Provider
	configured    bool
	exchangeCalls atomic.Int64
	exchangeErr   error
	profileErr    error
	profile       *provider.Profile
}

func (f *fakeAdapter) Name() domain.Provider { return f.name }
func (f *fakeAdapter) Configured() bool      { return f.configured }

func (f *fakeAdapter) AuthCodeURL(state, nonce string) string {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAdapter) Exchange(_ context.Context, code, _ string) (provider.Token, error) {
	f.exchangeCalls.Add(1)
	if f.exchangeErr != nil {
		return provider.Token{}, f.exchangeErr
	}
	return provider.Token{AccessToken: "tok-" + code, TokenType: "Bearer"}, nil
}

func (f *fakeAdapter) FetchProfile(_ context.Context, _ string) (*provider.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func verifiedGitHubProfile(email string) *provider.Profile {
	return &provider.Profile{
		GitHubUser: &provider.GitHubUser{ID: 7, Login: "octo", Name: "Octo Cat"},
		GitHubEmails: []provider.GitHubEmail{
			{Email: email, Primary: true, Verified: true},
		},
	}
}

func newTestOrchestrator(adapter provider.Adapter) (*Orchestrator, *state.Store) {
	states := state.New(kv.NewMemory())
	return New(states, provider.NewRegistry(adapter), account.NewMemoryStore(), 0), states
}

// issuedState runs Begin and extracts the state it put in the authorize URL.
func issuedState(t *testing.T, o *Orchestrator, providerName string) string {
	t.Helper()
	authURL, err := o.Begin(context.Background(), providerName)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	st := u.Query().Get("state")
	if st == "" {
		t.Fatal("authorize url missing state")
	}
	return st
}

func callbackQuery(code, state string) url.Values {
	q := url.Values{}
	q.Set("code", code)
	q.Set("state", state)
	return q
}

func TestEndToEndSuccess(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		profile:    verifiedGitHubProfile("octo@x.com"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")

	res := o.Callback(context.Background(), "github", callbackQuery("abc", st))
	if res.Err != nil {
		t.Fatalf("callback: %v", res.Err)
	}
	if res.Identity.Email != "octo@x.com" {
		t.Fatalf("email = %q, want %q", res.Identity.Email, "octo@x.com")
	}
	if res.Account == nil || res.Account.Email != "octo@x.com" {
		t.Fatalf("account = %+v", res.Account)
	}
	if got := adapter.exchangeCalls.Load(); got != 1 {
		t.Fatalf("exchange calls = %d, want 1", got)
	}
}

func TestBeginUnconfiguredProvider(t *testing.T) {
	adapter := &fakeAdapter{name: domain.ProviderGitHub, configured: false}
	o, _ := newTestOrchestrator(adapter)

	_, err := o.Begin(context.Background(), "github")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not-configured error, got %v", err)
	}
}

func TestProviderDeniedShortCircuits(t *testing.T) {
	adapter := &fakeAdapter{name: domain.ProviderGitHub, configured: true}
	o, states := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")

	q := url.Values{}
	q.Set("error", "access_denied")
	q.Set("error_description", "The user has denied your application access.")
	q.Set("state", st)

	res := o.Callback(context.Background(), "github", q)
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindProviderDenied {
		t.Fatalf("expected ProviderDenied, got %v", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "denied your application") {
		t.Fatalf("expected error_description in detail, got %v", res.Err)
	}
	if got := adapter.exchangeCalls.Load(); got != 0 {
		t.Fatalf("exchange must not be attempted, got %d calls", got)
	}

	// The denied attempt must have burned the stored state.
	if err := states.ConsumeAndVerify(context.Background(), st); err == nil {
		t.Fatal("expected stored state to be cleared")
	}
}

func TestMalformedCallback(t *testing.T) {
	adapter := &fakeAdapter{name: domain.ProviderGitHub, configured: true}
	o, _ := newTestOrchestrator(adapter)

	issuedState(t, o, "github")

	q := url.Values{}
	q.Set("code", "abc") // state missing

	res := o.Callback(context.Background(), "github", q)
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindMalformedCallback {
		t.Fatalf("expected MalformedCallback, got %v", res.Err)
	}
}

func TestStateMismatchBlocksExchange(t *testing.T) {
	adapter := &fakeAdapter{name: domain.ProviderGitHub, configured: true}
	o, _ := newTestOrchestrator(adapter)

	issuedState(t, o, "github")

	res := o.Callback(context.Background(), "github", callbackQuery("abc", "forged"))
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindCsrfStateMismatch {
		t.Fatalf("expected CsrfStateMismatch, got %v", res.Err)
	}
	if got := adapter.exchangeCalls.Load(); got != 0 {
		t.Fatalf("exchange must not run after state mismatch, got %d calls", got)
	}
}

func TestCallbackWithoutAttempt(t *testing.T) {
	adapter := &fakeAdapter{name: domain.ProviderGitHub, configured: true}
	o, _ := newTestOrchestrator(adapter)

	res := o.Callback(context.Background(), "github", callbackQuery("abc", "s1"))
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindStateMissing {
		t.Fatalf("expected StateMissing, got %v", res.Err)
	}
}

func TestExchangeFailurePropagatesKind(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		exchangeErr: domain.NewFlowError(domain.KindAuthorizationCodeExpired,
			"authorization code rejected"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")

	res := o.Callback(context.Background(), "github", callbackQuery("stale", st))
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindAuthorizationCodeExpired {
		t.Fatalf("expected AuthorizationCodeExpired, got %v", res.Err)
	}
}

func TestProfileFetchFailure(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		profileErr: domain.NewFlowError(domain.KindProfileFetchFailed, "boom"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")

	res := o.Callback(context.Background(), "github", callbackQuery("abc", st))
	kind, ok := domain.FlowKind(res.Err)
	if !ok || kind != domain.KindProfileFetchFailed {
		t.Fatalf("expected ProfileFetchFailed, got %v", res.Err)
	}
}

func TestDuplicateCallbackIsNoOp(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		profile:    verifiedGitHubProfile("octo@x.com"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")
	q := callbackQuery("abc", st)

	first := o.Callback(context.Background(), "github", q)
	if first.Err != nil {
		t.Fatalf("first callback: %v", first.Err)
	}

	// Identical parameters again: must observe the first result without a
	// second exchange, even though the state is already consumed.
	second := o.Callback(context.Background(), "github", q)
	if second.Err != nil {
		t.Fatalf("duplicate callback surfaced %v instead of first result", second.Err)
	}
	if second.Identity.Email != first.Identity.Email {
		t.Fatal("duplicate callback returned a different identity")
	}
	if got := adapter.exchangeCalls.Load(); got != 1 {
		t.Fatalf("exchange calls = %d, want exactly 1", got)
	}
}

func TestConcurrentDuplicateCallbacks(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		profile:    verifiedGitHubProfile("octo@x.com"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")
	q := callbackQuery("abc", st)

	const n = 8
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Callback(context.Background(), "github", q)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("goroutine %d: %v", i, res.Err)
		}
	}
	if got := adapter.exchangeCalls.Load(); got != 1 {
		t.Fatalf("exchange calls = %d, want exactly 1", got)
	}
}

func TestRetryNeedsFreshState(t *testing.T) {
	adapter := &fakeAdapter{
		name:       domain.ProviderGitHub,
		configured: true,
		profile:    verifiedGitHubProfile("octo@x.com"),
	}
	o, _ := newTestOrchestrator(adapter)

	st := issuedState(t, o, "github")
	if res := o.Callback(context.Background(), "github", callbackQuery("abc", st)); res.Err != nil {
		t.Fatalf("first attempt: %v", res.Err)
	}

	// A new attempt gets a brand-new state and succeeds independently.
	st2 := issuedState(t, o, "github")
	if st2 == st {
		t.Fatal("expected a fresh state per attempt")
	}
	res := o.Callback(context.Background(), "github", callbackQuery("def", st2))
	if res.Err != nil {
		t.Fatalf("second attempt: %v", res.Err)
	}
}
