package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codepulse.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The remote document overlay (ApplyRemote) happens after the first
// successful server contact, not here.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if cfg.Auth.CredentialsFile == "" {
		cfg.Auth.CredentialsFile = defaultCredentialsFile()
	}
	if cfg.API.WSBaseURL == "" {
		cfg.API.WSBaseURL = deriveWSBase(cfg.API.BaseURL)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.API.BaseURL, "CODEPULSE_API_BASE")
	setString(&cfg.API.WSBaseURL, "CODEPULSE_WS_BASE")
	setDuration(&cfg.API.Timeout, "CODEPULSE_API_TIMEOUT")
	setBool(&cfg.API.RequireTLS, "CODEPULSE_REQUIRE_TLS")
	setBool(&cfg.API.FetchRemoteConfig, "CODEPULSE_FETCH_REMOTE_CONFIG")
	setBool(&cfg.Auth.Enabled, "CODEPULSE_AUTH_ENABLED")
	setString(&cfg.Auth.CredentialsFile, "CODEPULSE_CREDENTIALS_FILE")
	setDuration(&cfg.Poll.FastInterval, "CODEPULSE_POLL_FAST_INTERVAL")
	setDuration(&cfg.Poll.SlowInterval, "CODEPULSE_POLL_SLOW_INTERVAL")
	setDuration(&cfg.Poll.SessionTimeout, "CODEPULSE_SESSION_TIMEOUT")
	setStrings(&cfg.Terminal.Statuses, "CODEPULSE_TERMINAL_STATUSES")
	setBool(&cfg.Terminal.StageRule, "CODEPULSE_TERMINAL_STAGE_RULE")
	setString(&cfg.Logging.Level, "CODEPULSE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODEPULSE_LOG_SERVICE")
	setBool(&cfg.Breaker.Enabled, "CODEPULSE_BREAKER_ENABLED")
	setInt(&cfg.Breaker.MaxFailures, "CODEPULSE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CODEPULSE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.FileCacheMB, "CODEPULSE_FILE_CACHE_MB")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if cfg.Poll.FastInterval <= 0 {
		return errors.New("poll.fast_interval must be positive")
	}
	if cfg.Poll.SlowInterval <= 0 {
		return errors.New("poll.slow_interval must be positive")
	}
	if cfg.Poll.SessionTimeout <= 0 {
		return errors.New("poll.session_timeout must be positive")
	}
	if cfg.Breaker.Enabled && cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

// deriveWSBase converts an HTTP base URL into the matching websocket base.
func deriveWSBase(httpBase string) string {
	switch {
	case strings.HasPrefix(httpBase, "https://"):
		return "wss://" + strings.TrimPrefix(httpBase, "https://")
	case strings.HasPrefix(httpBase, "http://"):
		return "ws://" + strings.TrimPrefix(httpBase, "http://")
	default:
		return httpBase
	}
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".codepulse-credentials.json")
	}
	return filepath.Join(dir, "codepulse", "credentials.json")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
