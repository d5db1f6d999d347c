package gate

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed gateway request.
type Kind string

const (
	KindInvalidInput             Kind = "invalid_input"
	KindMissingCredential        Kind = "missing_credential"
	KindUnauthorized             Kind = "unauthorized"
	KindQuotaExceeded            Kind = "quota_exceeded"
	KindPlanUpgradeRequired      Kind = "plan_upgrade_required"
	KindUpstreamUnavailable      Kind = "upstream_unavailable"
	KindTimeout                  Kind = "timeout"
	KindBackendContractViolation Kind = "backend_contract_violation"
	KindInternalMisconfiguration Kind = "internal_misconfiguration"
)

// Messages shown to callers for failures whose cause stays internal.
const (
	msgProcessingFailed     = "failed to process request"
	msgInferenceUnavailable = "inference service unavailable"
	msgTimeout              = "request timed out"
	msgMisconfigured        = "server misconfiguration"
)

// Error is the single error type returned by Gate.Run. Message is safe to
// show to the caller; Err carries the internal cause and is never exposed.
type Error struct {
	Kind            Kind
	Status          int
	Message         string
	UpgradeRequired bool
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns err as a *Error. Errors of any other type are reported as
// an internal misconfiguration.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &Error{
		Kind:    KindInternalMisconfiguration,
		Status:  http.StatusInternalServerError,
		Message: msgMisconfigured,
		Err:     err,
	}
}

func newError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// kindForStatus maps an entitlement denial status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuotaExceeded
	case status >= 500:
		return KindUpstreamUnavailable
	default:
		return KindUnauthorized
	}
}
