// Package config loads the chatlock configuration file from the data
// directory. The file carries the conversation-service endpoint and identity;
// all lock state lives in the database, not here.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside the data directory.
const FileName = "chatlock.yaml"

// DefaultRequestTimeout bounds conversation-service calls when the config
// does not specify one.
const DefaultRequestTimeout = 30 * time.Second

// Errors
var (
	ErrConfigNotFound    = errors.New("config: config file not found")
	ErrConfigInsecure    = errors.New("config: config file has insecure permissions")
	ErrConfigSymlink     = errors.New("config: config file is a symlink")
	ErrConfigNotOwned    = errors.New("config: config file not owned by current user")
	ErrMissingServiceURL = errors.New("config: service_base_url is required")
	ErrMissingUserID     = errors.New("config: user_id is required")
)

// Config is the parsed chatlock.yaml.
type Config struct {
	Version               int    `yaml:"version"`
	ServiceBaseURL        string `yaml:"service_base_url"`
	APIKey                string `yaml:"api_key"`
	UserID                string `yaml:"user_id"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the configured conversation-service timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load reads and validates the config file from the data directory. The file
// holds an API key, so loading is TOCTOU-safe and rejects symlinks, group or
// world access, and foreign ownership.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)

	// Open with O_NOFOLLOW to reject symlinks
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		if os.IsPermission(err) || errors.Is(err, syscall.ELOOP) {
			return nil, ErrConfigSymlink
		}
		return nil, fmt.Errorf("config: failed to open config file: %w", err)
	}
	defer f.Close()

	// fstat the opened descriptor rather than the path
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat config file: %w", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrConfigInsecure, perm)
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Uid != uint32(os.Getuid()) {
			return nil, ErrConfigNotOwned
		}
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config file: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("config: unsupported config version: %d", cfg.Version)
	}
	if cfg.ServiceBaseURL == "" {
		return nil, ErrMissingServiceURL
	}
	if cfg.UserID == "" {
		return nil, ErrMissingUserID
	}

	return &cfg, nil
}

// Write saves the config file with owner-only permissions. Used by the setup
// command to seed a fresh data directory.
func Write(dataDir string, cfg *Config) error {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("config: failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, FileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: failed to write config file: %w", err)
	}
	return nil
}
