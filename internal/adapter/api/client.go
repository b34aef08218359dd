// Package api provides the authenticated HTTP client for the task platform.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	cpotel "github.com/Strob0t/CodePulse/internal/adapter/otel"
	"github.com/Strob0t/CodePulse/internal/config"
	"github.com/Strob0t/CodePulse/internal/credential"
	"github.com/Strob0t/CodePulse/internal/resilience"
)

// maxBodyBytes bounds response reads; task payloads are small, file contents
// are capped server-side.
const maxBodyBytes = 8 << 20

// Client issues authenticated requests against the platform API. It attaches
// the best available credential and performs a single-flight refresh-and-retry
// on authorization failure.
type Client struct {
	baseURL     string
	authEnabled bool
	requireTLS  bool
	httpClient  *http.Client
	creds       *credential.Store
	breaker     *resilience.Breaker
	refresh     singleflight.Group
	metrics     *cpotel.Metrics
}

// NewClient creates a Client from config and the credential store.
func NewClient(apiCfg config.API, authCfg config.Auth, creds *credential.Store) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(apiCfg.BaseURL, "/"),
		authEnabled: authCfg.Enabled,
		requireTLS:  apiCfg.RequireTLS,
		httpClient: &http.Client{
			Timeout:   apiCfg.Timeout,
			Transport: cpotel.Transport(nil),
		},
		creds: creds,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) { c.breaker = b }

// SetMetrics attaches metric instruments.
func (c *Client) SetMetrics(m *cpotel.Metrics) { c.metrics = m }

// BaseURL returns the configured API base.
func (c *Client) BaseURL() string { return c.baseURL }

// Credentials returns the client's credential store.
func (c *Client) Credentials() *credential.Store { return c.creds }

// Do issues an authenticated request and returns the response body.
// body (when non-nil) is JSON-encoded. Authorization failures trigger at most
// one refresh-and-retry.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.do(ctx, method, path, body, true)
}

// do carries the retry budget as data: retryOnUnauthorized is false on the
// single retry issued after a successful refresh, which guarantees
// termination regardless of server behavior.
func (c *Client) do(ctx context.Context, method, path string, body any, retryOnUnauthorized bool) ([]byte, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	cred := c.creds.Get()
	usedAccess := cred.HasAccess()

	// Proactive refresh: a token whose exp claim is already past would only
	// buy a 401 round trip, so rotate it before the request goes out.
	if usedAccess && retryOnUnauthorized && c.refreshMeaningful(true) && c.accessExpired() {
		if err := c.RefreshCredential(ctx); err != nil {
			return nil, err
		}
		cred = c.creds.Get()
		usedAccess = cred.HasAccess()
	}

	data, status, err := c.execute(ctx, method, path, payload, cred)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && retryOnUnauthorized && c.refreshMeaningful(usedAccess) {
		if refreshErr := c.RefreshCredential(ctx); refreshErr != nil {
			return nil, statusError(status, errorMessage(data))
		}
		return c.do(ctx, method, path, body, false)
	}

	if status < 200 || status > 299 {
		return nil, statusError(status, errorMessage(data))
	}
	return data, nil
}

// execute performs one HTTP round trip, optionally through the breaker.
func (c *Client) execute(ctx context.Context, method, path string, payload []byte, cred credential.Credential) (data []byte, status int, err error) {
	call := func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if reqErr != nil {
			return fmt.Errorf("create request: %w", reqErr)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		// Bearer access token outranks the static API key.
		switch {
		case cred.HasAccess():
			req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		case cred.HasAPIKey():
			req.Header.Set("Authorization", "Bearer "+cred.APIKey)
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return networkError("request failed", doErr)
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		data, doErr = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if doErr != nil {
			return networkError("read response", doErr)
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			return nil, 0, apiErr
		}
		return nil, 0, networkError("request failed", err)
	}
	return data, status, nil
}

// expiryLeeway pads the proactive expiry check so a token about to lapse
// mid-flight counts as expired.
const expiryLeeway = 30 * time.Second

// accessExpired reports whether the held access token's exp claim is in the
// past. Tokens without a readable claim are assumed live; the reactive 401
// path still covers them.
func (c *Client) accessExpired() bool {
	exp, ok := c.creds.AccessTokenExpiry()
	return ok && time.Until(exp) < expiryLeeway
}

// checkEndpoint is the insecure-endpoint guard: with RequireTLS set, plain
// http calls are refused before touching the network, the same way the
// browser blocks mixed content.
func (c *Client) checkEndpoint() error {
	if c.requireTLS && strings.HasPrefix(c.baseURL, "http://") {
		return networkError("insecure endpoint blocked: "+c.baseURL, nil)
	}
	return nil
}

// refreshMeaningful mirrors the refresh precondition: auth must be enabled,
// and the failing request must have used an access token — or no static key
// exists to fall back on.
func (c *Client) refreshMeaningful(usedAccess bool) bool {
	if !c.authEnabled {
		return false
	}
	cred := c.creds.Get()
	if !cred.CanRefresh() {
		return false
	}
	return usedAccess || !cred.HasAPIKey()
}

// RefreshCredential exchanges the stored refresh token for a new access
// token. Concurrent callers share one in-flight refresh: the first caller
// performs the network call, the rest await its result. On failure the
// credential is cleared entirely, forcing re-authentication.
func (c *Client) RefreshCredential(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		if c.metrics != nil {
			c.metrics.RefreshAttempts.Add(ctx, 1)
		}

		cred := c.creds.Get()
		if !cred.CanRefresh() {
			return nil, &Error{Kind: KindAuth, Message: "no refresh token"}
		}

		body, err := json.Marshal(map[string]string{"refresh_token": cred.RefreshToken})
		if err != nil {
			return nil, fmt.Errorf("marshal refresh: %w", err)
		}

		data, status, err := c.execute(ctx, http.MethodPost, "/auth/refresh", body, credential.Credential{})
		if err != nil {
			return nil, err
		}
		if status < 200 || status > 299 {
			slog.Warn("credential refresh rejected, clearing credentials", "status", status)
			if clearErr := c.creds.Clear(); clearErr != nil {
				slog.Error("failed to clear credentials", "error", clearErr)
			}
			return nil, statusError(status, errorMessage(data))
		}

		var tok TokenResponse
		if err := json.Unmarshal(data, &tok); err != nil {
			return nil, fmt.Errorf("parse refresh response: %w", err)
		}
		if tok.AccessToken == "" {
			return nil, &Error{Kind: KindAuth, Message: "refresh returned no access token"}
		}

		if err := c.creds.SetAccess(tok.AccessToken, tok.RefreshToken, tok.User.toDomain()); err != nil {
			return nil, fmt.Errorf("store refreshed credential: %w", err)
		}
		slog.Debug("access token refreshed")
		return nil, nil
	})
	return err
}

// errorMessage extracts a human-readable message from an error response body.
// The server uses "detail" (FastAPI style); "error" and "message" are
// accepted as fallbacks.
func errorMessage(data []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	switch {
	case body.Detail != "":
		return body.Detail
	case body.Error != "":
		return body.Error
	default:
		return body.Message
	}
}
