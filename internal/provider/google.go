package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// GoogleUser is the payload of Google's oauth2/v2 userinfo endpoint. It
// already carries the single email with its verification flag, so no
// separate email listing exists.
type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Google adapts Google's OAuth2 implementation with the standard
// openid/email/profile scopes.
type Google struct {
	creds       Credentials
	cfg         *oauth2.Config
	client      *http.Client
	userinfoURL string
}

// NewGoogle creates the Google adapter. A nil client falls back to
// http.DefaultClient.
func NewGoogle(creds Credentials, client *http.Client) *Google {
	if client == nil {
		client = http.DefaultClient
	}
	return &Google{
		creds: creds,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		client:      client,
		userinfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

// OverrideEndpoints points the adapter at a different OAuth endpoint and
// userinfo URL. Tests use this to substitute a fake provider.
func (g *Google) OverrideEndpoints(authURL, tokenURL, userinfoURL string) {
	g.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	g.userinfoURL = userinfoURL
}

func (g *Google) Name() domain.Provider {
	return domain.ProviderGoogle
}

func (g *Google) Configured() bool {
	return g.creds.Configured()
}

// AuthCodeURL builds the authorize URL. The nonce is round-tripped to the
// provider but never verified here: the flow exchanges the code for an
// access token and reads the REST userinfo endpoint, it does not request or
// validate an ID token.
func (g *Google) AuthCodeURL(state, nonce string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	return g.cfg.AuthCodeURL(state, opts...)
}

func (g *Google) Exchange(ctx context.Context, code, redirectURI string) (Token, error) {
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

func (g *Google) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return nil, classifyProfileError(err, "build google userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyProfileError(err, "fetch google userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewFlowError(domain.KindProfileFetchFailed,
			"google userinfo returned status %d: %s", resp.StatusCode, body)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, classifyProfileError(err, "decode google userinfo response")
	}
	return &Profile{GoogleUser: &user}, nil
}
