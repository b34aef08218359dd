package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteDocument is the server-published configuration document at
// {base}/config. Values present here outrank every local source for the
// endpoint addresses.
type RemoteDocument struct {
	APIBaseURL string `json:"api_base_url"`
	WSBaseURL  string `json:"ws_base_url"`
	// AuthEnabled mirrors the server's auth capability; the client downgrades
	// to anonymous mode when the server reports auth disabled.
	AuthEnabled *bool `json:"auth_enabled,omitempty"`
}

// FetchRemote retrieves the remote configuration document from the currently
// configured base URL. A missing document (404) is not an error: older
// servers do not publish one.
func FetchRemote(ctx context.Context, baseURL string) (*RemoteDocument, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/config", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch remote config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote config: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read remote config: %w", err)
	}

	var doc RemoteDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse remote config: %w", err)
	}
	return &doc, nil
}

// ApplyRemote overlays the remote document onto cfg. Nil doc is a no-op.
func ApplyRemote(cfg *Config, doc *RemoteDocument) {
	if doc == nil {
		return
	}
	if doc.APIBaseURL != "" {
		cfg.API.BaseURL = doc.APIBaseURL
		if doc.WSBaseURL == "" {
			cfg.API.WSBaseURL = deriveWSBase(doc.APIBaseURL)
		}
	}
	if doc.WSBaseURL != "" {
		cfg.API.WSBaseURL = doc.WSBaseURL
	}
	if doc.AuthEnabled != nil {
		cfg.Auth.Enabled = *doc.AuthEnabled
	}
}
