// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

sessions:
  ttl: "72h"

dispatch:
  default_timeout: "45s"
  invocation_cache_ttl: "30m"
  invocation_cache_max: 500

credentials:
  refresh_margin: "90s"
  max_attempts: 6
  google:
    client_id: "client-id"
    client_secret: "client-secret"

relay:
  buffer_window: 128
  subscriber_buffer: 32

providers:
  telegram:
    enabled: true
    bot_token: "tg-token"
    poll_timeout: "25s"
  gmail:
    sender: "bot@example.com"
  sheets:
    folder_id: "folder-1"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Sessions.TTL != 72*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 72h", cfg.Sessions.TTL)
	}
	if cfg.Dispatch.DefaultTimeout != 45*time.Second {
		t.Errorf("Dispatch.DefaultTimeout = %v, want 45s", cfg.Dispatch.DefaultTimeout)
	}
	if cfg.Dispatch.InvocationCacheTTL != 30*time.Minute {
		t.Errorf("Dispatch.InvocationCacheTTL = %v, want 30m", cfg.Dispatch.InvocationCacheTTL)
	}
	if cfg.Dispatch.InvocationCacheMax != 500 {
		t.Errorf("Dispatch.InvocationCacheMax = %d, want 500", cfg.Dispatch.InvocationCacheMax)
	}
	if cfg.Credentials.RefreshMargin != 90*time.Second {
		t.Errorf("Credentials.RefreshMargin = %v, want 90s", cfg.Credentials.RefreshMargin)
	}
	if cfg.Credentials.MaxAttempts != 6 {
		t.Errorf("Credentials.MaxAttempts = %d, want 6", cfg.Credentials.MaxAttempts)
	}
	if cfg.Relay.BufferWindow != 128 {
		t.Errorf("Relay.BufferWindow = %d, want 128", cfg.Relay.BufferWindow)
	}
	if !cfg.Providers.Telegram.Enabled {
		t.Error("Providers.Telegram.Enabled = false, want true")
	}
	if cfg.Providers.Telegram.PollTimeout != 25*time.Second {
		t.Errorf("Telegram.PollTimeout = %v, want 25s", cfg.Providers.Telegram.PollTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s default", cfg.Dispatch.DefaultTimeout)
	}
	if cfg.Credentials.RefreshMargin != 60*time.Second {
		t.Errorf("RefreshMargin = %v, want 60s default", cfg.Credentials.RefreshMargin)
	}
	if cfg.Credentials.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4 default", cfg.Credentials.MaxAttempts)
	}
	if cfg.Relay.BufferWindow != 256 {
		t.Errorf("BufferWindow = %d, want 256 default", cfg.Relay.BufferWindow)
	}
	if cfg.Relay.SubscriberBuffer != 64 {
		t.Errorf("SubscriberBuffer = %d, want 64 default", cfg.Relay.SubscriberBuffer)
	}
	if cfg.Providers.Telegram.APIBase != "https://api.telegram.org" {
		t.Errorf("Telegram.APIBase = %q, want Telegram default", cfg.Providers.Telegram.APIBase)
	}
	if cfg.Credentials.Google.TokenURL != "https://oauth2.googleapis.com/token" {
		t.Errorf("Google.TokenURL = %q, want Google default", cfg.Credentials.Google.TokenURL)
	}
	if cfg.Sessions.TTL != 0 {
		t.Errorf("Sessions.TTL = %v, want 0 (eviction disabled)", cfg.Sessions.TTL)
	}
	if cfg.Retrieval.ChunkSize != 800 || cfg.Retrieval.ChunkOverlap != 100 {
		t.Errorf("Retrieval chunking = (%d,%d), want (800,100)", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("ERRAND_TEST_BOT_TOKEN", "secret-token")

	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
providers:
  telegram:
    enabled: true
    bot_token: "${ERRAND_TEST_BOT_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Providers.Telegram.BotToken != "secret-token" {
		t.Errorf("BotToken = %q, want expanded env value", cfg.Providers.Telegram.BotToken)
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
providers:
  gmail:
    sender: "${ERRAND_TEST_DOES_NOT_EXIST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers.Gmail.Sender != "" {
		t.Errorf("Sender = %q, want empty for unset env var", cfg.Providers.Gmail.Sender)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
sessions:
  ttl: "three days"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "sessions.ttl") {
		t.Errorf("error = %v, want mention of sessions.ttl", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name: "telegram enabled without token",
			mutate: func(c *Config) {
				c.Providers.Telegram.Enabled = true
				c.Providers.Telegram.BotToken = ""
			},
			wantErr: "bot_token",
		},
		{
			name: "overlap not smaller than chunk size",
			mutate: func(c *Config) {
				c.Retrieval.ChunkSize = 100
				c.Retrieval.ChunkOverlap = 100
			},
			wantErr: "chunk_overlap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
			}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
