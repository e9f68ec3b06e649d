package provider

import (
	"context"
	"errors"
	"net"

	"golang.org/x/oauth2"

	"github.com/txopito/oauth-proxy/internal/domain"
)

// classifyExchangeError turns the raw token-endpoint failure into a typed
// flow error. This is the single place the provider's error vocabulary is
// interpreted; nothing downstream re-derives the kind from strings.
//
// GitHub reports exchange failures with its own error codes (and sometimes
// an HTTP 200 carrying an error body, which x/oauth2 still surfaces as a
// RetrieveError); Google uses the RFC 6749 codes.
func classifyExchangeError(err error) *domain.FlowError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		detail := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			detail += ": " + retrieveErr.ErrorDescription
		}

		switch retrieveErr.ErrorCode {
		case "bad_verification_code", "invalid_grant":
			return domain.WrapFlowError(domain.KindAuthorizationCodeExpired, err,
				"authorization code rejected (%s)", detail)
		case "incorrect_client_credentials", "invalid_client", "unauthorized_client":
			return domain.WrapFlowError(domain.KindServerMisconfigured, err,
				"provider rejected client credentials (%s)", detail)
		case "redirect_uri_mismatch":
			return domain.WrapFlowError(domain.KindRedirectURIMismatch, err,
				"redirect_uri does not match authorize step (%s)", detail)
		default:
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return domain.WrapFlowError(domain.KindUpstreamProtocolError, err,
				"token endpoint returned status %d (%s)", status, detail)
		}
	}

	if isTimeout(err) {
		return domain.WrapFlowError(domain.KindUpstreamTimeout, err,
			"token exchange timed out")
	}

	return domain.WrapFlowError(domain.KindUpstreamProtocolError, err,
		"token exchange failed")
}

// classifyProfileError maps profile-fetch failures: timeouts are their own
// kind, everything else is the transient ProfileFetchFailed class.
func classifyProfileError(err error, detail string) *domain.FlowError {
	if isTimeout(err) {
		return domain.WrapFlowError(domain.KindUpstreamTimeout, err,
			"%s timed out", detail)
	}
	return domain.WrapFlowError(domain.KindProfileFetchFailed, err, "%s", detail)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
