// ABOUTME: Registers the gateway's built-in tool packs into the registry
// ABOUTME: Collects provider clients and core components as pack dependencies

package builtins

import (
	"log/slog"

	"github.com/errandhq/errand-gateway/internal/providers/gmail"
	"github.com/errandhq/errand-gateway/internal/providers/sheets"
	"github.com/errandhq/errand-gateway/internal/providers/telegram"
	"github.com/errandhq/errand-gateway/internal/relay"
	"github.com/errandhq/errand-gateway/internal/retrieval"
	"github.com/errandhq/errand-gateway/internal/tools"
)

// Google OAuth scopes required by the mail and spreadsheet packs.
const (
	ScopeMailSend     = "https://www.googleapis.com/auth/gmail.send"
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
)

// googleProvider is the credential provider the Google packs bind against.
const googleProvider = "google"

// Deps carries everything the built-in packs need. Nil collaborators
// skip their pack, so a deployment without, say, a Telegram bot token
// simply doesn't expose the messaging tools.
type Deps struct {
	Registry *tools.Registry
	Telegram *telegram.Client
	Gmail    *gmail.Client
	Sheets   *sheets.Client
	Relay    *relay.Relay
	Index    *retrieval.Index
	Logger   *slog.Logger
}

// Register installs every applicable pack.
func Register(deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "builtins")

	registerMathPack(deps.Registry)
	if deps.Telegram != nil && deps.Relay != nil {
		registerMessagingPack(deps.Registry, deps.Telegram, deps.Relay)
	}
	if deps.Gmail != nil {
		registerMailPack(deps.Registry, deps.Gmail)
	}
	if deps.Sheets != nil {
		registerSheetsPack(deps.Registry, deps.Sheets)
	}
	if deps.Index != nil {
		registerSearchPack(deps.Registry, deps.Index)
	}

	logger.Info("built-in tools registered", "count", len(deps.Registry.List()))
}
