package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/txopito/oauth-proxy/internal/domain"
	"github.com/txopito/oauth-proxy/internal/flow"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response. Message is the
// user-facing treatment for the failure kind; raw provider detail stays in
// the logs.
type APIError struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
	Details   []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	// Echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	var flowErr *domain.FlowError
	if errors.As(err, &flowErr) {
		return mapFlowError(flowErr)
	}

	switch {
	case errors.Is(err, flow.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, APIError{
			Code:    "provider_not_configured",
			Message: "This sign-in method is not configured",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	default:
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, APIError{
				Code:    "validation_error",
				Message: "Validation failed",
				Details: []FieldError{
					{Field: validationErr.Field, Message: validationErr.Message},
				},
			}
		}

		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}

// mapFlowError translates the failure taxonomy into HTTP statuses and
// user-facing guidance. Operator-facing kinds get a deliberately generic
// message; the full detail was already logged where the failure happened.
func mapFlowError(fe *domain.FlowError) (int, APIError) {
	apiErr := APIError{Code: string(fe.Kind), Retryable: fe.Retryable()}

	switch fe.Kind {
	case domain.KindProviderDenied:
		apiErr.Message = "The provider cancelled the sign-in. Try again"
		return http.StatusUnauthorized, apiErr
	case domain.KindMalformedCallback:
		apiErr.Message = "The sign-in callback was incomplete. Start a fresh sign-in"
		return http.StatusBadRequest, apiErr
	case domain.KindCsrfStateMismatch, domain.KindStateMissing:
		apiErr.Message = "The sign-in attempt could not be validated. Start a fresh sign-in"
		return http.StatusUnauthorized, apiErr
	case domain.KindAuthorizationCodeExpired:
		apiErr.Message = "The sign-in code has expired. Try again"
		return http.StatusBadRequest, apiErr
	case domain.KindServerMisconfigured, domain.KindRedirectURIMismatch:
		apiErr.Message = "Sign-in is temporarily unavailable. Contact the administrator"
		return http.StatusInternalServerError, apiErr
	case domain.KindProfileFetchFailed, domain.KindUpstreamProtocolError:
		apiErr.Message = "The provider returned an unexpected response. Try again"
		return http.StatusBadGateway, apiErr
	case domain.KindUpstreamTimeout:
		apiErr.Message = "The provider took too long to respond. Try again"
		return http.StatusGatewayTimeout, apiErr
	case domain.KindNoVerifiedEmail, domain.KindEmailNotVerified:
		apiErr.Message = "No verified email is available. Verify an email with the provider, then try again"
		return http.StatusForbidden, apiErr
	default:
		apiErr.Message = "Sign-in failed"
		return http.StatusInternalServerError, apiErr
	}
}
