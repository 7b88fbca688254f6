package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/errors"
)

// loginTokenPath is the homeserver endpoint issuing one-time login tokens
// for an already authenticated user.
const loginTokenPath = "/auth/v1/login/token"

// HTTPCredentialExchanger implements CredentialExchanger against the
// homeserver's login-token endpoint. The caller's access token authenticates
// the request; a 429 response is preserved as an HTTPError so the
// orchestrator can classify it as rate_limited.
type HTTPCredentialExchanger struct {
	client        *http.Client
	homeserverURL string
	accessToken   string
}

// NewHTTPCredentialExchanger builds an exchanger for the given homeserver.
// A nil client falls back to http.DefaultClient.
func NewHTTPCredentialExchanger(client *http.Client, homeserverURL, accessToken string) *HTTPCredentialExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCredentialExchanger{
		client:        client,
		homeserverURL: strings.TrimRight(homeserverURL, "/"),
		accessToken:   accessToken,
	}
}

// RequestLoginToken implements CredentialExchanger.
func (e *HTTPCredentialExchanger) RequestLoginToken(ctx context.Context) (*domain.LoginToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.homeserverURL+loginTokenPath, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to build login token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.accessToken)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("homeserver unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.NewHTTPError(resp.StatusCode, string(body))
	}

	var token domain.LoginToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode login token response: %w", err)
	}
	if token.Value == "" {
		return nil, errors.NewUnknown("homeserver returned an empty login token")
	}
	return &token, nil
}
