package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// FlowErrorKind classifies why a login attempt failed. The kind is decided
// exactly once, at the boundary that parses the provider's raw response;
// downstream code switches on the kind and never re-inspects error strings.
type FlowErrorKind string

const (
	// KindProviderDenied means the user declined consent or the provider
	// reported an error on the authorize step.
	KindProviderDenied FlowErrorKind = "provider_denied"
	// KindMalformedCallback means the redirect arrived without a code or
	// state parameter.
	KindMalformedCallback FlowErrorKind = "malformed_callback"
	// KindCsrfStateMismatch means the callback state did not match the
	// stored value. Hard failure, never retried silently.
	KindCsrfStateMismatch FlowErrorKind = "csrf_state_mismatch"
	// KindStateMissing means no stored state exists for this attempt,
	// primary and backup copies included.
	KindStateMissing FlowErrorKind = "state_missing"
	// KindAuthorizationCodeExpired means the code was stale or already used.
	KindAuthorizationCodeExpired FlowErrorKind = "authorization_code_expired"
	// KindServerMisconfigured means the provider rejected our client
	// credentials. Operator-facing, not user-fixable.
	KindServerMisconfigured FlowErrorKind = "server_misconfigured"
	// KindRedirectURIMismatch means the redirect_uri sent on exchange did
	// not match the one used on the authorize step.
	KindRedirectURIMismatch FlowErrorKind = "redirect_uri_mismatch"
	// KindProfileFetchFailed means the profile endpoints could not be read
	// after a successful exchange.
	KindProfileFetchFailed FlowErrorKind = "profile_fetch_failed"
	// KindUpstreamTimeout means an outbound call exceeded its deadline.
	KindUpstreamTimeout FlowErrorKind = "upstream_timeout"
	// KindUpstreamProtocolError means the provider returned something the
	// exchange could not interpret (non-2xx, non-JSON, missing fields).
	KindUpstreamProtocolError FlowErrorKind = "upstream_protocol_error"
	// KindNoVerifiedEmail means GitHub exposed no verified email at all.
	KindNoVerifiedEmail FlowErrorKind = "no_verified_email"
	// KindEmailNotVerified means Google reported verified_email=false.
	KindEmailNotVerified FlowErrorKind = "email_not_verified"
)

// FlowError is the typed failure surfaced by every step of a login attempt.
// Detail carries operator-facing context for logs; it is never sent to
// clients.
type FlowError struct {
	Kind   FlowErrorKind
	Detail string
	Err    error
}

func (e *FlowError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a fresh user-initiated attempt can plausibly
// succeed without provider-side or operator-side changes.
func (e *FlowError) Retryable() bool {
	switch e.Kind {
	case KindServerMisconfigured, KindRedirectURIMismatch,
		KindNoVerifiedEmail, KindEmailNotVerified:
		return false
	}
	return true
}

// NewFlowError builds a FlowError with formatted detail.
func NewFlowError(kind FlowErrorKind, format string, args ...any) *FlowError {
	return &FlowError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapFlowError attaches a cause to a FlowError.
func WrapFlowError(kind FlowErrorKind, err error, format string, args ...any) *FlowError {
	return &FlowError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// FlowKind extracts the failure kind from err, if it carries one.
func FlowKind(err error) (FlowErrorKind, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
