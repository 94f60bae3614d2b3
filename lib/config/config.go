// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHomeserverURL is used when neither the config file nor
	// MATRIX_HOMESERVER_URL names a homeserver.
	DefaultHomeserverURL = "https://matrix.org"

	// ConfigPathVariable names the environment variable Load reads.
	ConfigPathVariable = "BUREAU_DM_CONFIG"

	// HomeserverVariable overrides HomeserverURL after loading.
	HomeserverVariable = "MATRIX_HOMESERVER_URL"
)

// Ownership rules for classifying a timeline event as self-authored.
const (
	// OwnershipIdentity compares the sender with the authenticated
	// user ID.
	OwnershipIdentity = "identity"
	// OwnershipServer treats every sender on the local user's
	// homeserver as self. It misclassifies other users on the same
	// server and exists for parity with earlier clients.
	OwnershipServer = "server"
)

// Config is the complete client configuration.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver.
	HomeserverURL string `yaml:"homeserver_url" json:"homeserver_url"`

	// RegistrationToken is offered when the homeserver requires
	// token-authenticated registration. Empty means registration uses
	// the dummy auth stage only.
	RegistrationToken string `yaml:"registration_token" json:"registration_token"`

	// DeviceDisplayName is sent with login and registration.
	DeviceDisplayName string `yaml:"device_display_name" json:"device_display_name"`

	// Ownership selects how timeline events are attributed to the
	// local user: "identity" (default) or "server".
	Ownership string `yaml:"ownership" json:"ownership"`

	// Sync configures the live feed.
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Log configures logging.
	Log LogConfig `yaml:"log" json:"log"`
}

// SyncConfig configures the /sync long-poll loop.
type SyncConfig struct {
	// Timeout is the server-side long-poll hold, as a Go duration.
	// Default: 30s
	Timeout string `yaml:"timeout" json:"timeout"`

	// RetryDelay is the pause between failed /sync attempts.
	// Default: 2s
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`

	// RetryLimit is the number of consecutive failures after which the
	// feed reports itself broken. Default: 5
	RetryLimit int `yaml:"retry_limit" json:"retry_limit"`
}

// LogConfig configures the client's structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level" json:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HomeserverURL:     DefaultHomeserverURL,
		DeviceDisplayName: "bureau-dm",
		Ownership:         OwnershipIdentity,
		Sync: SyncConfig{
			Timeout:    "30s",
			RetryDelay: "2s",
			RetryLimit: 5,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads the file named by BUREAU_DM_CONFIG, or returns the
// defaults when the variable is unset. MATRIX_HOMESERVER_URL is applied
// in both cases.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigPathVariable)
	if configPath == "" {
		cfg := Default()
		cfg.applyEnvironment()
		return cfg, cfg.Validate()
	}
	return LoadFile(configPath)
}

// LoadFile reads configuration from the given path. Values missing from
// the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) applyEnvironment() {
	if homeserver := os.Getenv(HomeserverVariable); homeserver != "" {
		c.HomeserverURL = homeserver
	}
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("homeserver_url is empty")
	}
	parsed, err := url.Parse(c.HomeserverURL)
	if err != nil {
		return fmt.Errorf("homeserver_url %q: %w", c.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("homeserver_url %q: scheme must be http or https", c.HomeserverURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("homeserver_url %q: missing host", c.HomeserverURL)
	}

	switch c.Ownership {
	case OwnershipIdentity, OwnershipServer:
	default:
		return fmt.Errorf("ownership %q: must be %q or %q", c.Ownership, OwnershipIdentity, OwnershipServer)
	}

	if _, err := positiveDuration("sync.timeout", c.Sync.Timeout); err != nil {
		return err
	}
	if _, err := positiveDuration("sync.retry_delay", c.Sync.RetryDelay); err != nil {
		return err
	}
	if c.Sync.RetryLimit <= 0 {
		return fmt.Errorf("sync.retry_limit must be positive, got %d", c.Sync.RetryLimit)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn, or error", c.Log.Level)
	}
	return nil
}

// SyncTimeout returns Sync.Timeout parsed. Call after Validate.
func (c *Config) SyncTimeout() time.Duration {
	duration, _ := time.ParseDuration(c.Sync.Timeout)
	return duration
}

// SyncRetryDelay returns Sync.RetryDelay parsed. Call after Validate.
func (c *Config) SyncRetryDelay() time.Duration {
	duration, _ := time.ParseDuration(c.Sync.RetryDelay)
	return duration
}

func positiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, value, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}
