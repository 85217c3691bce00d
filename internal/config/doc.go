// Package config handles configuration loading for errand-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ERRAND_CONFIG environment variable
//  2. ~/.config/errand/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  telegram:
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  ttl: "72h"
//	credentials:
//	  refresh_margin: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server and database:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/errand/gateway.db"
//
// Dispatcher:
//
//	dispatch:
//	  default_timeout: "30s"
//	  invocation_cache_ttl: "1h"
//	  invocation_cache_max: 10000
//
// Credentials:
//
//	credentials:
//	  refresh_margin: "60s"
//	  refresh_backoff: "500ms"
//	  max_attempts: 4
//	  google:
//	    client_id: "${GOOGLE_CLIENT_ID}"
//	    client_secret: "${GOOGLE_CLIENT_SECRET}"
//
// Event relay:
//
//	relay:
//	  buffer_window: 256
//	  subscriber_buffer: 64
//
// Providers:
//
//	providers:
//	  telegram:
//	    enabled: true
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
//	    poll_timeout: "30s"
//	  gmail:
//	    sender: "bot@example.com"
//	  sheets:
//	    folder_id: ""
//
// Maintenance schedules use cron syntax; an empty schedule disables the job:
//
//	maintenance:
//	  eviction_schedule: "0 * * * *"
//	  prerefresh_schedule: "*/5 * * * *"
//	  rebuild_schedule: ""
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
