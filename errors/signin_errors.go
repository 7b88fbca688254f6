package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lumichat/rendezvous/domain"
)

// SignInError carries a FailureReason through the layers so the orchestrator
// can surface it unchanged instead of collapsing it to "unknown".
type SignInError struct {
	Reason      domain.FailureReason `json:"reason"`
	Description string               `json:"description,omitempty"`
}

func (e *SignInError) Error() string {
	if e.Description == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Description)
}

// NewSignInError builds a SignInError for an arbitrary reason.
func NewSignInError(reason domain.FailureReason, description string) *SignInError {
	return &SignInError{Reason: reason, Description: description}
}

// Common error constructors
func NewUnknown(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonUnknown, Description: description}
}

func NewExpired(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonExpired, Description: description}
}

func NewUserCancelled() *SignInError {
	return &SignInError{Reason: domain.ReasonUserCancelled}
}

func NewHomeserverLacksSupport(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonHomeserverLacksSupport, Description: description}
}

func NewInvalidCode(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonInvalidCode, Description: description}
}

func NewUnsupportedAlgorithm(algorithm string) *SignInError {
	return &SignInError{
		Reason:      domain.ReasonUnsupportedAlgorithm,
		Description: fmt.Sprintf("peer requested unsupported algorithm %q", algorithm),
	}
}

func NewUnsupportedProtocol(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonUnsupportedProtocol, Description: description}
}

func NewUnexpectedMessage(got domain.MessageType, want domain.MessageType) *SignInError {
	return &SignInError{
		Reason:      domain.ReasonUnexpectedMessage,
		Description: fmt.Sprintf("received %q while waiting for %q", got, want),
	}
}

func NewDataMismatch(description string) *SignInError {
	return &SignInError{Reason: domain.ReasonDataMismatch, Description: description}
}

// ReasonOf extracts the FailureReason from err if it is (or wraps) a
// SignInError. The second return reports whether one was found.
func ReasonOf(err error) (domain.FailureReason, bool) {
	var serr *SignInError
	if errors.As(err, &serr) {
		return serr.Reason, true
	}
	return "", false
}

// HTTPError is a transport-level rejection carrying the response status. The
// credential exchanger returns it so the orchestrator can map 429 to the
// rate_limited failure reason.
type HTTPError struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// NewHTTPError builds an HTTPError from a response status and body.
func NewHTTPError(status int, body string) *HTTPError {
	return &HTTPError{Status: status, Body: body}
}

// StatusOf extracts the HTTP status from err if it is (or wraps) an
// HTTPError; it returns 0 otherwise.
func StatusOf(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Status
	}
	return 0
}

// IsRateLimited reports whether err is an HTTP 429 rejection.
func IsRateLimited(err error) bool {
	return StatusOf(err) == http.StatusTooManyRequests
}
