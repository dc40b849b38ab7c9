package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

const validYAML = `version: 1
service_base_url: https://api.example.com
api_key: secret-key
user_id: userA
request_timeout_seconds: 10
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, validYAML, 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServiceBaseURL != "https://api.example.com" {
		t.Errorf("unexpected service url %q", cfg.ServiceBaseURL)
	}
	if cfg.UserID != "userA" {
		t.Errorf("unexpected user id %q", cfg.UserID)
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Errorf("unexpected timeout %v", cfg.RequestTimeout())
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, validYAML, 0644)

	if _, err := Load(dir); !errors.Is(err, ErrConfigInsecure) {
		t.Errorf("expected ErrConfigInsecure, got %v", err)
	}
}

func TestLoadRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	if err := os.WriteFile(target, []byte(validYAML), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, FileName)); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected symlinked config to be rejected")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"missing url", "version: 1\nuser_id: userA\n", ErrMissingServiceURL},
		{"missing user", "version: 1\nservice_base_url: https://api.example.com\n", ErrMissingUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfigFile(t, dir, tt.content, 0600)
			if _, err := Load(dir); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadBadVersion(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "version: 2\nservice_base_url: x\nuser_id: y\n", 0600)
	if _, err := Load(dir); err == nil {
		t.Error("expected unsupported version to be rejected")
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ServiceBaseURL: "https://api.example.com",
		UserID:         "userA",
		APIKey:         "k",
	}
	if err := Write(dir, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ServiceBaseURL != cfg.ServiceBaseURL || loaded.UserID != cfg.UserID {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.RequestTimeout() != DefaultRequestTimeout {
		t.Errorf("expected default timeout, got %v", loaded.RequestTimeout())
	}
}
