package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Strob0t/CodePulse/internal/credential"
)

// UserInfo is the server's account representation.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (u UserInfo) toDomain() *credential.User {
	if u.ID == "" && u.Email == "" {
		return nil
	}
	return &credential.User{ID: u.ID, Email: u.Email, Name: u.Name}
}

// TokenResponse is the body of login, register, and refresh responses.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresIn    int      `json:"expires_in,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	User         UserInfo `json:"user,omitempty"`
}

// Login authenticates with email and password and stores the resulting
// credential.
func (c *Client) Login(ctx context.Context, email, password string) (*UserInfo, error) {
	return c.tokenRequest(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and stores the resulting credential.
func (c *Client) Register(ctx context.Context, email, password, name string) (*UserInfo, error) {
	return c.tokenRequest(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

func (c *Client) tokenRequest(ctx context.Context, path string, body map[string]string) (*UserInfo, error) {
	data, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, &Error{Kind: KindAuth, Message: "server returned no access token"}
	}

	if err := c.creds.SetAccess(tok.AccessToken, tok.RefreshToken, tok.User.toDomain()); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &tok.User, nil
}

// Logout invalidates the server-side session and clears local credentials.
// Local state is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, reqErr := c.do(ctx, http.MethodPost, "/auth/logout", nil, false)
	if err := c.creds.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return reqErr
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	data, err := c.Do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		User UserInfo `json:"user"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse me response: %w", err)
	}
	if resp.User.ID == "" && resp.User.Email == "" {
		// Some servers return the user object at the top level.
		var u UserInfo
		if err := json.Unmarshal(data, &u); err == nil {
			resp.User = u
		}
	}
	return &resp.User, nil
}

// WSToken mints a short-lived token for the push-channel handshake, which
// cannot carry an Authorization header.
func (c *Client) WSToken(ctx context.Context) (string, error) {
	data, err := c.Do(ctx, http.MethodPost, "/auth/ws-token", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse ws-token response: %w", err)
	}
	if resp.Token == "" {
		return "", &Error{Kind: KindAuth, Message: "server returned no ws token"}
	}
	return resp.Token, nil
}

// GoogleLoginURL is the browser entry point for the OAuth flow; the flow
// itself is out of scope for this client.
func (c *Client) GoogleLoginURL() string {
	return c.baseURL + "/auth/google/login"
}
