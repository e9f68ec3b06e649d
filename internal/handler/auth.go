package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/flow"
	"github.com/txopito/oauth-proxy/internal/provider"
)

// AuthHandler exposes the OAuth proxy surface: the stateless token/profile
// endpoints used by an external frontend, and the server-driven login flow.
type AuthHandler struct {
	registry *provider.Registry
	orch     *flow.Orchestrator
	timeout  time.Duration
}

// NewAuthHandler creates a new AuthHandler. A zero timeout falls back to
// the flow default.
func NewAuthHandler(registry *provider.Registry, orch *flow.Orchestrator, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = flow.DefaultUpstreamTimeout
	}
	return &AuthHandler{registry: registry, orch: orch, timeout: timeout}
}

// Register wires the auth routes onto e.
func (h *AuthHandler) Register(e *echo.Echo) {
	e.GET("/api/health", h.Health)

	e.POST("/api/auth/:provider/token", h.ExchangeToken)
	e.GET("/api/auth/:provider/user", h.FetchUser)
	e.DELETE("/api/auth/attempt", h.AbandonAttempt)

	e.GET("/auth/:provider/login", h.Login)
	e.GET("/auth/:provider/callback", h.Callback)
}

// Health reports which providers are ready for a flow, so a frontend can
// pre-flight backend availability before starting one.
func (h *AuthHandler) Health(c echo.Context) error {
	services := make(map[string]bool)
	for _, name := range h.registry.Names() {
		adapter, err := h.registry.Get(string(name))
		if err != nil {
			continue
		}
		services[string(name)+"_oauth"] = adapter.Configured()
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"services": services,
	})
}

type tokenRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirect_uri" validate:"required,url"`
}

// ExchangeToken swaps an authorization code for an access token on behalf
// of the frontend, keeping the client secret on this side of the trust
// boundary. The code is single-use; callers must not resubmit it.
func (h *AuthHandler) ExchangeToken(c echo.Context) error {
	adapter, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		return err
	}
	if !adapter.Configured() {
		return fmt.Errorf("%w: %s", flow.ErrProviderNotConfigured, c.Param("provider"))
	}

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	tok, err := adapter.Exchange(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tok)
}

// FetchUser proxies the provider's profile endpoints for a bearer access
// token. GitHub responses include the email list; Google's user object
// already carries email and verified_email.
func (h *AuthHandler) FetchUser(c echo.Context) error {
	adapter, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		return err
	}

	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	profile, err := adapter.FetchProfile(ctx, token)
	if err != nil {
		return err
	}

	body := map[string]any{}
	switch {
	case profile.GitHubUser != nil:
		body["user"] = profile.GitHubUser
		body["emails"] = profile.GitHubEmails
	case profile.GoogleUser != nil:
		body["user"] = profile.GoogleUser
	}
	return c.JSON(http.StatusOK, body)
}

// Login starts a fresh attempt and redirects to the provider's consent
// page.
func (h *AuthHandler) Login(c echo.Context) error {
	authURL, err := h.orch.Begin(c.Request().Context(), c.Param("provider"))
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, authURL)
}

// Callback resolves the redirect-return into an identity and its local
// account, or a typed failure.
func (h *AuthHandler) Callback(c echo.Context) error {
	res := h.orch.Callback(c.Request().Context(), c.Param("provider"), c.QueryParams())
	if res.Err != nil {
		return res.Err
	}

	return JSON(c, http.StatusOK, map[string]any{
		"identity": res.Identity,
		"user":     res.Account,
	})
}

// AbandonAttempt clears any in-flight login state. Used when the user backs
// out before the provider redirects; the provider-side code expires on its
// own.
func (h *AuthHandler) AbandonAttempt(c echo.Context) error {
	h.orch.Abandon(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}
