package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// GitHubUser is the payload of GitHub's /user endpoint.
// See https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubEmail is one entry of GitHub's /user/emails endpoint.
type GitHubEmail struct {
	Email      string `json:"email"`
	Primary    bool   `json:"primary"`
	Verified   bool   `json:"verified"`
	Visibility string `json:"visibility"`
}

// GitHub adapts GitHub's OAuth2 implementation. Scope user:email covers the
// profile and the email list.
type GitHub struct {
	creds      Credentials
	cfg        *oauth2.Config
	client     *http.Client
	apiBaseURL string
}

// NewGitHub creates the GitHub adapter. A nil client falls back to
// http.DefaultClient.
func NewGitHub(creds Credentials, client *http.Client) *GitHub {
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHub{
		creds: creds,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		client:     client,
		apiBaseURL: "https://api.github.com",
	}
}

// OverrideEndpoints points the adapter at a different OAuth endpoint and API
// base. Tests use this to substitute a fake provider.
func (g *GitHub) OverrideEndpoints(authURL, tokenURL, apiBaseURL string) {
	g.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	g.apiBaseURL = apiBaseURL
}

func (g *GitHub) Name() domain.Provider {
	return domain.ProviderGitHub
}

func (g *GitHub) Configured() bool {
	return g.creds.Configured()
}

// AuthCodeURL builds the authorize URL. The nonce is unused: GitHub is plain
// OAuth2, not OIDC.
func (g *GitHub) AuthCodeURL(state, _ string) string {
	return g.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("allow_signup", "true"))
}

func (g *GitHub) Exchange(ctx context.Context, code, redirectURI string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := g.cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return Token{}, classifyExchangeError(err)
	}
	if tok.AccessToken == "" {
		return Token{}, domain.NewFlowError(domain.KindUpstreamProtocolError,
			"token response missing access_token")
	}
	return Token{AccessToken: tok.AccessToken, TokenType: tok.Type()}, nil
}

func (g *GitHub) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var user GitHubUser
	if err := g.getJSON(ctx, "/user", accessToken, &user); err != nil {
		return nil, err
	}

	var emails []GitHubEmail
	if err := g.getJSON(ctx, "/user/emails", accessToken, &emails); err != nil {
		return nil, err
	}

	return &Profile{GitHubUser: &user, GitHubEmails: emails}, nil
}

func (g *GitHub) getJSON(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return classifyProfileError(err, fmt.Sprintf("build github %s request", path))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyProfileError(err, fmt.Sprintf("fetch github %s", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NewFlowError(domain.KindProfileFetchFailed,
			"github %s returned status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return classifyProfileError(err, fmt.Sprintf("decode github %s response", path))
	}
	return nil
}
