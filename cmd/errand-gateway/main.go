// ABOUTME: Entry point for the errand-gateway server
// ABOUTME: Dispatches conversational automation commands to provider tools

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/errandhq/errand-gateway/internal/config"
	"github.com/errandhq/errand-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                 _
  ___ _ __ _ __ __ _ _ __   __| |      __ _  __ _| |_ _____      ____ _ _   _
 / _ \ '__| '__/ _' | '_ \ / _' |_____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
|  __/ |  | | | (_| | | | | (_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___|_|  |_|  \__,_|_| |_|\__,_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: ERRAND_CONFIG env var > XDG_CONFIG_HOME/errand/gateway.yaml > ~/.config/errand/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ERRAND_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "errand", "gateway.yaml")
}

// getDataPath returns the path to the errand data directory.
// Priority: XDG_DATA_HOME/errand > ~/.local/share/errand
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "errand")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: errand-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the gateway server")
		fmt.Println("  init    Create an example config file")
		fmt.Println("  health  Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Providers.Telegram.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Telegram:  polling enabled")
	}
	fmt.Println()

	logger.Info("starting errand-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	dbPath := filepath.Join(getDataPath(), "gateway.db")

	configContent := fmt.Sprintf(`# errand-gateway configuration
# Generated by errand-gateway init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

logging:
  level: "info"
  format: "text"

sessions:
  # Idle sessions older than this are evicted by maintenance.
  # Leave empty (or zero) to keep sessions forever.
  ttl: "720h"

dispatch:
  default_timeout: "30s"
  invocation_cache_ttl: "1h"

credentials:
  refresh_margin: "60s"
  google:
    client_id: "${GOOGLE_CLIENT_ID}"
    client_secret: "${GOOGLE_CLIENT_SECRET}"

providers:
  telegram:
    enabled: false
    bot_token: "${TELEGRAM_BOT_TOKEN}"
  gmail:
    sender: ""
  sheets:
    folder_id: ""

maintenance:
  eviction_schedule: "@hourly"
  prerefresh_schedule: "@every 5m"
  rebuild_schedule: ""
`, dbPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("  Edit it, then run: errand-gateway serve")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = newColorHandler(os.Stderr, level)
	}

	return slog.New(handler)
}

// colorHandler renders human-readable colorized log lines. Clones made by
// WithAttrs/WithGroup share the parent's mutex so writes stay serialized
// across the whole handler tree.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	prefix string // dotted group path applied to attr keys
	attrs  []slog.Attr
}

func newColorHandler(out io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{mu: &sync.Mutex{}, out: out, level: level}
}

var levelTags = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG"),
	slog.LevelInfo:  color.CyanString("INF"),
	slog.LevelWarn:  color.YellowString("WRN"),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR"),
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	buf.WriteByte(' ')
	if tag, ok := levelTags[r.Level]; ok {
		buf.WriteString(tag)
	} else {
		buf.WriteString(r.Level.String())
	}
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs.
	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	key := a.Key
	if h.prefix != "" {
		key = h.prefix + "." + key
	}
	buf.WriteString(color.HiBlackString(" " + key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix += "." + name
	}
	return &clone
}
