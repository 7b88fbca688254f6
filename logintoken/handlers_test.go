package logintoken

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/domain"
)

func newHandlerServer(t *testing.T, limit int) *echo.Echo {
	t.Helper()

	repo := NewMemoryRepository(time.Minute)
	t.Cleanup(func() { _ = repo.Close() })

	var limiter *RateLimiter
	if limit > 0 {
		limiter = NewRateLimiter(limit, time.Minute)
		t.Cleanup(func() { _ = limiter.Close() })
	}

	e := echo.New()
	NewAPI(NewService(repo, limiter, time.Minute, nil)).RegisterRoutes(e)
	return e
}

func issueToken(t *testing.T, e *echo.Echo, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/v1/login/token", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIssueHandler(t *testing.T) {
	e := newHandlerServer(t, 0)

	rec := issueToken(t, e, "@alice:example.com")
	require.Equal(t, http.StatusOK, rec.Code)

	var token domain.LoginToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.True(t, strings.HasPrefix(token.Value, "lt_"))
	assert.Equal(t, time.Minute.Milliseconds(), token.ExpiresIn)
}

func TestIssueHandler_Unauthenticated(t *testing.T) {
	e := newHandlerServer(t, 0)

	rec := issueToken(t, e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueHandler_RateLimited(t *testing.T) {
	e := newHandlerServer(t, 1)

	require.Equal(t, http.StatusOK, issueToken(t, e, "@alice:example.com").Code)

	rec := issueToken(t, e, "@alice:example.com")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body struct {
		Reason domain.FailureReason `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ReasonRateLimited, body.Reason)
}

func TestRedeemHandler(t *testing.T) {
	e := newHandlerServer(t, 0)

	rec := issueToken(t, e, "@alice:example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	var token domain.LoginToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	redeem := func() *httptest.ResponseRecorder {
		body := strings.NewReader(`{"login_token":"` + token.Value + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/auth/v1/login", body)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		r := httptest.NewRecorder()
		e.ServeHTTP(r, req)
		return r
	}

	first := redeem()
	require.Equal(t, http.StatusOK, first.Code)
	var redemption Redemption
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &redemption))
	assert.Equal(t, "@alice:example.com", redemption.UserID)
	assert.NotEmpty(t, redemption.DeviceID)

	// A second redemption of the same token is refused.
	assert.Equal(t, http.StatusForbidden, redeem().Code)
}

func TestRedeemHandler_MissingToken(t *testing.T) {
	e := newHandlerServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/login", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
