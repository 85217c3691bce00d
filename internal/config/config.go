// ABOUTME: Configuration loading and parsing for errand-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete errand-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Relay       RelayConfig       `yaml:"relay"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionsConfig holds session lifecycle configuration.
// A zero TTL disables eviction entirely.
type SessionsConfig struct {
	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// DispatchConfig holds dispatcher timing and idempotency-cache configuration
type DispatchConfig struct {
	DefaultTimeout     time.Duration `yaml:"-"`
	InvocationCacheTTL time.Duration `yaml:"-"`
	InvocationCacheMax int           `yaml:"invocation_cache_max"`

	DefaultTimeoutRaw     string `yaml:"default_timeout"`
	InvocationCacheTTLRaw string `yaml:"invocation_cache_ttl"`
}

// CredentialsConfig holds OAuth refresh behavior configuration
type CredentialsConfig struct {
	RefreshMargin  time.Duration `yaml:"-"`
	RefreshBackoff time.Duration `yaml:"-"`
	MaxAttempts    int           `yaml:"max_attempts"`

	RefreshMarginRaw  string `yaml:"refresh_margin"`
	RefreshBackoffRaw string `yaml:"refresh_backoff"`

	Google GoogleOAuthConfig `yaml:"google"`
}

// GoogleOAuthConfig holds the OAuth client used for Gmail and Sheets credentials
type GoogleOAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"` // defaults to the Google token endpoint
}

// RelayConfig holds event relay buffering configuration
type RelayConfig struct {
	BufferWindow     int `yaml:"buffer_window"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// ProvidersConfig holds configuration for all external collaborator integrations
type ProvidersConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Gmail    GmailConfig    `yaml:"gmail"`
	Sheets   SheetsConfig   `yaml:"sheets"`
}

// TelegramConfig holds Telegram Bot API integration configuration
type TelegramConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BotToken    string        `yaml:"bot_token"`
	APIBase     string        `yaml:"api_base"` // defaults to https://api.telegram.org
	PollTimeout time.Duration `yaml:"-"`

	PollTimeoutRaw string `yaml:"poll_timeout"`
}

// GmailConfig holds Gmail send configuration
type GmailConfig struct {
	Sender  string `yaml:"sender"`
	APIBase string `yaml:"api_base"` // defaults to https://gmail.googleapis.com
}

// SheetsConfig holds Google Sheets/Drive configuration
type SheetsConfig struct {
	FolderID      string `yaml:"folder_id"` // optional Drive folder new spreadsheets move into
	SheetsAPIBase string `yaml:"sheets_api_base"`
	DriveAPIBase  string `yaml:"drive_api_base"`
}

// RetrievalConfig holds document index configuration
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	Dimensions   int `yaml:"dimensions"`
}

// MaintenanceConfig holds cron schedules for background sweeps.
// Empty schedules disable the corresponding job.
type MaintenanceConfig struct {
	EvictionSchedule   string `yaml:"eviction_schedule"`
	PreRefreshSchedule string `yaml:"prerefresh_schedule"`
	RebuildSchedule    string `yaml:"rebuild_schedule"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields left unset.
func (c *Config) applyDefaults() {
	if c.Dispatch.DefaultTimeout == 0 {
		c.Dispatch.DefaultTimeout = 30 * time.Second
	}
	if c.Dispatch.InvocationCacheTTL == 0 {
		c.Dispatch.InvocationCacheTTL = time.Hour
	}
	if c.Dispatch.InvocationCacheMax == 0 {
		c.Dispatch.InvocationCacheMax = 10000
	}
	if c.Credentials.RefreshMargin == 0 {
		c.Credentials.RefreshMargin = 60 * time.Second
	}
	if c.Credentials.RefreshBackoff == 0 {
		c.Credentials.RefreshBackoff = 500 * time.Millisecond
	}
	if c.Credentials.MaxAttempts == 0 {
		c.Credentials.MaxAttempts = 4
	}
	if c.Relay.BufferWindow == 0 {
		c.Relay.BufferWindow = 256
	}
	if c.Relay.SubscriberBuffer == 0 {
		c.Relay.SubscriberBuffer = 64
	}
	if c.Providers.Telegram.APIBase == "" {
		c.Providers.Telegram.APIBase = "https://api.telegram.org"
	}
	if c.Providers.Telegram.PollTimeout == 0 {
		c.Providers.Telegram.PollTimeout = 30 * time.Second
	}
	if c.Providers.Gmail.APIBase == "" {
		c.Providers.Gmail.APIBase = "https://gmail.googleapis.com"
	}
	if c.Providers.Sheets.SheetsAPIBase == "" {
		c.Providers.Sheets.SheetsAPIBase = "https://sheets.googleapis.com"
	}
	if c.Providers.Sheets.DriveAPIBase == "" {
		c.Providers.Sheets.DriveAPIBase = "https://www.googleapis.com"
	}
	if c.Credentials.Google.TokenURL == "" {
		c.Credentials.Google.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.Retrieval.ChunkSize == 0 {
		c.Retrieval.ChunkSize = 800
	}
	if c.Retrieval.ChunkOverlap == 0 {
		c.Retrieval.ChunkOverlap = 100
	}
	if c.Retrieval.Dimensions == 0 {
		c.Retrieval.Dimensions = 256
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Providers.Telegram.Enabled && c.Providers.Telegram.BotToken == "" {
		return fmt.Errorf("providers.telegram.bot_token is required when telegram is enabled")
	}

	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be smaller than retrieval.chunk_size")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Sessions.TTLRaw, &cfg.Sessions.TTL, "sessions.ttl"},
		{cfg.Dispatch.DefaultTimeoutRaw, &cfg.Dispatch.DefaultTimeout, "dispatch.default_timeout"},
		{cfg.Dispatch.InvocationCacheTTLRaw, &cfg.Dispatch.InvocationCacheTTL, "dispatch.invocation_cache_ttl"},
		{cfg.Credentials.RefreshMarginRaw, &cfg.Credentials.RefreshMargin, "credentials.refresh_margin"},
		{cfg.Credentials.RefreshBackoffRaw, &cfg.Credentials.RefreshBackoff, "credentials.refresh_backoff"},
		{cfg.Providers.Telegram.PollTimeoutRaw, &cfg.Providers.Telegram.PollTimeout, "providers.telegram.poll_timeout"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
