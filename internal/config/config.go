// Package config provides hierarchical configuration loading for CodePulse.
// Precedence: defaults < YAML file < environment variables < remote document.
package config

import "time"

// Config holds all runtime configuration for the CodePulse client.
type Config struct {
	API      API      `yaml:"api"`
	Auth     Auth     `yaml:"auth"`
	Poll     Poll     `yaml:"poll"`
	Terminal Terminal `yaml:"terminal"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Cache    Cache    `yaml:"cache"`
}

// API holds HTTP and push-channel endpoint configuration.
type API struct {
	BaseURL string `yaml:"base_url"`
	// WSBaseURL is the push-channel base; derived from BaseURL when empty.
	WSBaseURL string        `yaml:"ws_base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	// RequireTLS blocks plain-http API calls. The browser client this
	// replaces enforced the same guard against mixed content.
	RequireTLS bool `yaml:"require_tls"`
	// FetchRemoteConfig enables the startup fetch of {base}/config, which
	// takes precedence over every local source for endpoint addresses.
	FetchRemoteConfig bool `yaml:"fetch_remote_config"`
}

// Auth holds client-side credential lifecycle configuration.
type Auth struct {
	// Enabled marks the server as auth-capable; when false a 401 never
	// triggers a refresh.
	Enabled bool `yaml:"enabled"`
	// CredentialsFile is where the refresh token and API key persist.
	// Defaults to $XDG_CONFIG_HOME/codepulse/credentials.json.
	CredentialsFile string `yaml:"credentials_file"`
}

// Poll holds the scheduler cadences and the global session timeout.
type Poll struct {
	FastInterval   time.Duration `yaml:"fast_interval"`
	SlowInterval   time.Duration `yaml:"slow_interval"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Terminal configures terminal-state detection.
type Terminal struct {
	// Statuses overrides the default terminal status label set.
	Statuses []string `yaml:"statuses"`
	// StageRule keeps the progress==1 && stage=="completed" condition.
	StageRule bool `yaml:"stage_rule"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Breaker holds circuit breaker configuration for the HTTP boundary.
type Breaker struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the in-process file-content cache configuration.
type Cache struct {
	FileCacheMB int64 `yaml:"file_cache_mb"`
}

// Defaults returns a Config with sensible default values for a same-origin
// local server.
func Defaults() Config {
	return Config{
		API: API{
			BaseURL:           "http://localhost:8000",
			Timeout:           15 * time.Second,
			FetchRemoteConfig: true,
		},
		Auth: Auth{
			Enabled: true,
		},
		Poll: Poll{
			FastInterval:   2 * time.Second,
			SlowInterval:   4 * time.Second,
			SessionTimeout: 3 * time.Minute,
		},
		Terminal: Terminal{
			StageRule: true,
		},
		Logging: Logging{
			Level:   "info",
			Service: "codepulse",
		},
		Breaker: Breaker{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			FileCacheMB: 32,
		},
	}
}
