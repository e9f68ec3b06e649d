package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// fakeTokenEndpoint serves a canned token-endpoint response.
func fakeTokenEndpoint(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token endpoint called with %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHub(srv *httptest.Server) *GitHub {
	gh := NewGitHub(Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example/auth/github/callback",
	}, srv.Client())
	gh.OverrideEndpoints(srv.URL+"/authorize", srv.URL+"/token", srv.URL)
	return gh
}

func TestExchangeSuccess(t *testing.T) {
	srv := fakeTokenEndpoint(t, http.StatusOK,
		`{"access_token":"tok-1","token_type":"bearer"}`)
	gh := newTestGitHub(srv)

	tok, err := gh.Exchange(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tok.AccessToken != "tok-1" {
		t.Fatalf("access token = %q, want %q", tok.AccessToken, "tok-1")
	}
}

func TestExchangeErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.FlowErrorKind
	}{
		{
			name:   "bad verification code",
			status: http.StatusBadRequest,
			body:   `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`,
			want:   domain.KindAuthorizationCodeExpired,
		},
		{
			name:   "invalid grant",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_grant"}`,
			want:   domain.KindAuthorizationCodeExpired,
		},
		{
			name:   "incorrect client credentials",
			status: http.StatusUnauthorized,
			body:   `{"error":"incorrect_client_credentials"}`,
			want:   domain.KindServerMisconfigured,
		},
		{
			name:   "invalid client",
			status: http.StatusUnauthorized,
			body:   `{"error":"invalid_client"}`,
			want:   domain.KindServerMisconfigured,
		},
		{
			name:   "redirect uri mismatch",
			status: http.StatusBadRequest,
			body:   `{"error":"redirect_uri_mismatch"}`,
			want:   domain.KindRedirectURIMismatch,
		},
		{
			name:   "unknown provider error",
			status: http.StatusBadRequest,
			body:   `{"error":"something_else"}`,
			want:   domain.KindUpstreamProtocolError,
		},
		{
			name:   "non-json 500",
			status: http.StatusInternalServerError,
			body:   `upstream exploded`,
			want:   domain.KindUpstreamProtocolError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeTokenEndpoint(t, tt.status, tt.body)
			gh := newTestGitHub(srv)

			_, err := gh.Exchange(context.Background(), "abc", "")
			kind, ok := domain.FlowKind(err)
			if !ok {
				t.Fatalf("expected FlowError, got %v", err)
			}
			if kind != tt.want {
				t.Fatalf("kind = %s, want %s", kind, tt.want)
			}
		})
	}
}

// GitHub reports invalid codes with HTTP 200 and an error body; the kind
// must still come out as AuthorizationCodeExpired.
func TestExchangeGitHubErrorWith200(t *testing.T) {
	srv := fakeTokenEndpoint(t, http.StatusOK,
		`{"error":"bad_verification_code"}`)
	gh := newTestGitHub(srv)

	_, err := gh.Exchange(context.Background(), "stale", "")
	kind, ok := domain.FlowKind(err)
	if !ok || kind != domain.KindAuthorizationCodeExpired {
		t.Fatalf("expected AuthorizationCodeExpired, got %v", err)
	}
}

// A 200 without access_token must fail with a typed error, never succeed
// with an empty token.
func TestExchangeMissingAccessToken(t *testing.T) {
	srv := fakeTokenEndpoint(t, http.StatusOK, `{"token_type":"bearer"}`)
	gh := newTestGitHub(srv)

	_, err := gh.Exchange(context.Background(), "abc", "")
	kind, ok := domain.FlowKind(err)
	if !ok || kind != domain.KindUpstreamProtocolError {
		t.Fatalf("expected UpstreamProtocolError, got %v", err)
	}
}

func TestExchangeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"late"}`))
	}))
	t.Cleanup(srv.Close)

	gh := newTestGitHub(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gh.Exchange(ctx, "abc", "")
	kind, ok := domain.FlowKind(err)
	if !ok || kind != domain.KindUpstreamTimeout {
		t.Fatalf("expected UpstreamTimeout, got %v", err)
	}
}

// The caller's redirect_uri must be forwarded to the token endpoint exactly.
func TestExchangeForwardsRedirectURI(t *testing.T) {
	var gotRedirect string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotRedirect = r.FormValue("redirect_uri")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	t.Cleanup(srv.Close)

	gh := newTestGitHub(srv)

	const redirect = "https://other.example/auth/github/callback"
	if _, err := gh.Exchange(context.Background(), "abc", redirect); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if gotRedirect != redirect {
		t.Fatalf("redirect_uri = %q, want %q", gotRedirect, redirect)
	}
}
