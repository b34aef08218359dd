// Package credential manages the client-side bearer credential lifecycle:
// an in-memory access token, a persisted refresh token, and a persisted
// static API key.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the current bearer material. AccessToken lives only in
// process memory and is never written to disk; after a restart it must be
// re-acquired through a refresh.
type Credential struct {
	AccessToken  string
	RefreshToken string
	APIKey       string
}

// HasAccess reports whether a bearer access token is available.
func (c Credential) HasAccess() bool { return c.AccessToken != "" }

// HasAPIKey reports whether a static API key is configured.
func (c Credential) HasAPIKey() bool { return c.APIKey != "" }

// CanRefresh reports whether a refresh attempt could succeed.
func (c Credential) CanRefresh() bool { return c.RefreshToken != "" }

// Usable reports whether any credential can authorize a request or a
// push-channel handshake.
func (c Credential) Usable() bool { return c.HasAccess() || c.HasAPIKey() }

// User identifies the logged-in account, when known.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// persisted is the on-disk shape. The access token is deliberately absent.
type persisted struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Store holds the credential and persists the durable parts to a JSON file.
// All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	access string
	disk   persisted
}

// NewStore opens (or lazily creates) the credential store at path. A missing
// file means an empty store, not an error.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s.disk); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return s, nil
}

// Get returns the current credential.
func (s *Store) Get() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Credential{
		AccessToken:  s.access,
		RefreshToken: s.disk.RefreshToken,
		APIKey:       s.disk.APIKey,
	}
}

// User returns the remembered account, or nil.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.User
}

// SetAccess stores a new access token in memory and remembers the user on
// disk. An empty refreshToken keeps the currently persisted one.
func (s *Store) SetAccess(accessToken, refreshToken string, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access = accessToken
	if refreshToken != "" {
		s.disk.RefreshToken = refreshToken
	}
	if u != nil {
		s.disk.User = u
	}
	return s.save()
}

// SetAPIKey persists a static API key.
func (s *Store) SetAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disk.APIKey = key
	return s.save()
}

// Clear wipes the access token, refresh token, and API key. It is idempotent:
// clearing an already empty store succeeds.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access = ""
	s.disk = persisted{}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// AccessTokenExpiry decodes the access token's exp claim without verifying
// the signature (the server owns verification). Returns false when no token
// is held or the token carries no readable expiry.
func (s *Store) AccessTokenExpiry() (time.Time, bool) {
	s.mu.Lock()
	token := s.access
	s.mu.Unlock()

	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// save must be called with s.mu held.
func (s *Store) save() error {
	// Nothing durable left: remove the file rather than writing an empty one,
	// so a cleared key does not linger on disk.
	if s.disk.RefreshToken == "" && s.disk.APIKey == "" && s.disk.User == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove credentials: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(s.disk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
