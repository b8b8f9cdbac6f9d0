// ABOUTME: Remote auth client delegating token verification and login over HTTP
// ABOUTME: Probes the auth service first and fails fast with ErrServiceUnavailable

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chestscan/modelhub/internal/probe"
)

// remoteTimeout bounds every delegated auth call.
const remoteTimeout = 10 * time.Second

// loginRequest is the JSON body for POST /token.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the JSON body returned by POST /token.
type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// verifyResponse is the JSON body returned by GET /verify-token.
type verifyResponse struct {
	Valid   bool   `json:"valid"`
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// RemoteClient delegates verification and login to the auth service over the
// network. Verify and login may target different base URLs when the identity
// plane is deployed as separate services.
type RemoteClient struct {
	verifyBase string
	loginBase  string
	client     *http.Client
	prober     *probe.Prober
	logger     *slog.Logger
}

// NewRemoteClient creates a client delegating both verify and login to the
// same auth service base URL.
func NewRemoteClient(baseURL string, prober *probe.Prober) *RemoteClient {
	return NewRemoteClientSplit(baseURL, baseURL, prober)
}

// NewRemoteClientSplit creates a client with distinct verification and login
// endpoints.
func NewRemoteClientSplit(verifyBase, loginBase string, prober *probe.Prober) *RemoteClient {
	return &RemoteClient{
		verifyBase: verifyBase,
		loginBase:  loginBase,
		client:     &http.Client{Timeout: remoteTimeout},
		prober:     prober,
		logger:     slog.Default().With("component", "authclient"),
	}
}

// Verify sends the token to the auth service's verification endpoint and
// translates the response into a local decision. A failed probe or any
// network-level failure surfaces as ErrServiceUnavailable, never as an
// invalid-token decision.
func (c *RemoteClient) Verify(ctx context.Context, tokenString string) (Decision, error) {
	if !c.prober.Check(ctx, c.verifyBase) {
		c.logger.Warn("auth service probe failed, skipping verification call", "url", c.verifyBase)
		return Decision{}, ErrServiceUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.verifyBase+"/verify-token", nil)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("token verification call failed", "error", err)
		return Decision{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Decision{}, fmt.Errorf("%w: decoding verify response: %v", ErrServiceUnavailable, err)
		}
		return Decision{Valid: body.Valid, Subject: body.Subject, Reason: Reason(body.Reason)}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		// The service checked the token and rejected it.
		return Decision{Valid: false, Reason: ReasonMalformed}, nil
	default:
		io.Copy(io.Discard, resp.Body)
		return Decision{}, fmt.Errorf("%w: verify endpoint returned %d", ErrServiceUnavailable, resp.StatusCode)
	}
}

// Login delegates credential validation to the identity service and returns
// the issued token. Wrong credentials surface as ErrFailedAuthentication; an
// unreachable identity service as ErrServiceUnavailable.
func (c *RemoteClient) Login(ctx context.Context, username, password string) (string, error) {
	if !c.prober.Check(ctx, c.loginBase) {
		c.logger.Warn("identity service probe failed, skipping login call", "url", c.loginBase)
		return "", ErrServiceUnavailable
	}

	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginBase+"/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("login call failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body loginResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("%w: decoding login response: %v", ErrServiceUnavailable, err)
		}
		if body.AccessToken == "" {
			return "", fmt.Errorf("%w: empty access token", ErrServiceUnavailable)
		}
		c.logger.Info("obtained token", "username", username)
		return body.AccessToken, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrFailedAuthentication
	default:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrServiceUnavailable, resp.StatusCode)
	}
}
