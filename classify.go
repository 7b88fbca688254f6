package rendezvous

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/errors"
)

// classify funnels every rejection from code generation, negotiation,
// granting, approval, or secret sharing into a FailureReason. An HTTP 429
// becomes rate_limited, a reason already in the taxonomy passes through
// unchanged, and everything else collapses to unknown. Nothing escapes
// unmapped.
func classify(err error) domain.FailureReason {
	if err == nil {
		return domain.ReasonUnknown
	}
	if errors.StatusOf(err) == http.StatusTooManyRequests {
		return domain.ReasonRateLimited
	}
	if reason, ok := errors.ReasonOf(err); ok {
		return reason
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonExpired
	}
	return domain.ReasonUnknown
}
