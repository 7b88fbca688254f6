package rendezvous

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/errors"
)

func TestHTTPCredentialExchanger_RequestLoginToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, loginTokenPath, r.URL.Path)
		assert.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login_token":"lt_abc","expires_in_ms":120000}`))
	}))
	defer srv.Close()

	ex := NewHTTPCredentialExchanger(srv.Client(), srv.URL+"/", "access-123")

	token, err := ex.RequestLoginToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lt_abc", token.Value)
	assert.Equal(t, int64(120000), token.ExpiresIn)
}

func TestHTTPCredentialExchanger_PreservesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ex := NewHTTPCredentialExchanger(srv.Client(), srv.URL, "access-123")

	_, err := ex.RequestLoginToken(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Equal(t, http.StatusTooManyRequests, errors.StatusOf(err))
}

func TestHTTPCredentialExchanger_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ex := NewHTTPCredentialExchanger(srv.Client(), srv.URL, "access-123")

	_, err := ex.RequestLoginToken(context.Background())
	require.Error(t, err)
	reason, ok := errors.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, "unknown", string(reason))
}
