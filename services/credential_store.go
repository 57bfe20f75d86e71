package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/cenkalti/backoff/v5"
)

const (
	loginPath     = "/auth/login"
	tokenDataPath = "/users/me/token-data"

	// maxResponseBytes bounds how much of a Credential Store response is read
	maxResponseBytes = 1 << 20

	// tokenDataMaxTries bounds attempts at the profile lookup. Login is never retried.
	tokenDataMaxTries = 3
)

// ErrLoginRejected is returned when the Credential Store refuses the credentials
// or answers without an access token.
var ErrLoginRejected = errors.New("credential store rejected login")

// StatusError reports a non-success response from the record API
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.StatusCode)
}

// loginRequest is the body of POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the /auth/login response from the record API
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// HTTPCredentialStore talks to the record API's auth endpoints
type HTTPCredentialStore struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// NewHTTPCredentialStore creates a client for the configured record API
func NewHTTPCredentialStore(cfg config.APIConfig) *HTTPCredentialStore {
	return NewHTTPCredentialStoreWithClient(cfg.BaseURL(), &http.Client{Timeout: cfg.Timeout})
}

// NewHTTPCredentialStoreWithClient creates a client with a caller-supplied http.Client
func NewHTTPCredentialStoreWithClient(baseURL string, httpClient *http.Client) *HTTPCredentialStore {
	return &HTTPCredentialStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 100 * time.Millisecond
			bo.MaxInterval = time.Second
			return bo
		},
	}
}

// Login exchanges an email and password for an access token
func (s *HTTPCredentialStore) Login(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &StatusError{Path: loginPath, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var loginResp LoginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return "", fmt.Errorf("parse login response: %w", err)
	}

	if strings.TrimSpace(loginResp.AccessToken) == "" {
		return "", fmt.Errorf("%w: no access_token in response", ErrLoginRejected)
	}

	return loginResp.AccessToken, nil
}

// TokenData fetches the authoritative identity for an access token. The lookup
// is idempotent, so gateway errors and refused connections are retried briefly;
// timeouts and every other status are final.
func (s *HTTPCredentialStore) TokenData(ctx context.Context, accessToken string) (*models.Identity, error) {
	return backoff.Retry(ctx, func() (*models.Identity, error) {
		return s.fetchTokenData(ctx, accessToken)
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(tokenDataMaxTries))
}

func (s *HTTPCredentialStore) fetchTokenData(ctx context.Context, accessToken string) (*models.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+tokenDataPath, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create token-data request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("token-data request failed: %w", err)
		if isTimeout(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("read token-data response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Path: tokenDataPath, StatusCode: resp.StatusCode, Body: string(body)}
		if retryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var identity models.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse token-data response: %w", err))
	}
	if err := identity.Validate(); err != nil {
		return nil, backoff.Permanent(err)
	}

	return &identity, nil
}

// Ping checks that the record API answers. Any response below 500 counts as up.
func (s *HTTPCredentialStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record API unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Path: "/", StatusCode: resp.StatusCode}
	}
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
