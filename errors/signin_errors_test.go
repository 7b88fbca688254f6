package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/domain"
)

func TestReasonOf(t *testing.T) {
	reason, ok := ReasonOf(NewExpired("gone"))
	require.True(t, ok)
	assert.Equal(t, domain.ReasonExpired, reason)

	wrapped := fmt.Errorf("sending failed: %w", NewUserCancelled())
	reason, ok = ReasonOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonUserCancelled, reason)

	_, ok = ReasonOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestSignInError_Error(t *testing.T) {
	assert.Equal(t, "user_cancelled", NewUserCancelled().Error())
	assert.Equal(t, "expired: channel gone", NewExpired("channel gone").Error())
}

func TestHTTPError(t *testing.T) {
	err := NewHTTPError(http.StatusTooManyRequests, "slow down")
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsRateLimited(fmt.Errorf("request failed: %w", err)))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(err))

	assert.False(t, IsRateLimited(NewHTTPError(http.StatusBadGateway, "")))
	assert.Zero(t, StatusOf(fmt.Errorf("plain")))
}
