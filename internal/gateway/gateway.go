// ABOUTME: Gateway orchestrator assembling store, dispatcher, relay, and providers
// ABOUTME: Owns component lifecycle from construction through graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/errandhq/errand-gateway/internal/builtins"
	"github.com/errandhq/errand-gateway/internal/config"
	"github.com/errandhq/errand-gateway/internal/creds"
	"github.com/errandhq/errand-gateway/internal/dispatch"
	"github.com/errandhq/errand-gateway/internal/maintenance"
	"github.com/errandhq/errand-gateway/internal/providers/gmail"
	"github.com/errandhq/errand-gateway/internal/providers/sheets"
	"github.com/errandhq/errand-gateway/internal/providers/telegram"
	"github.com/errandhq/errand-gateway/internal/relay"
	"github.com/errandhq/errand-gateway/internal/retrieval"
	"github.com/errandhq/errand-gateway/internal/session"
	"github.com/errandhq/errand-gateway/internal/store"
	"github.com/errandhq/errand-gateway/internal/tools"
)

// Gateway wires the gateway's components together and runs them.
type Gateway struct {
	config      *config.Config
	logger      *slog.Logger
	db          *store.SQLiteStore
	registry    *tools.Registry
	sessions    *session.Manager
	credentials *creds.Store
	dispatcher  *dispatch.Dispatcher
	events      *relay.Relay
	index       *retrieval.Index
	poller      *telegram.Poller
	upkeep      *maintenance.Runner
	httpServer  *http.Server
}

// New builds a Gateway from configuration. Collaborator packs whose
// configuration is absent are simply not registered.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	g := &Gateway{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: tools.NewRegistry(logger),
		sessions: session.NewManager(db, logger),
		events: relay.New(relay.Config{
			Window:           cfg.Relay.BufferWindow,
			SubscriberBuffer: cfg.Relay.SubscriberBuffer,
			Logger:           logger,
		}),
	}

	g.credentials = creds.New(creds.Config{
		Persistence: db,
		Endpoints: map[string]creds.Endpoint{
			"google": {
				TokenURL:     cfg.Credentials.Google.TokenURL,
				ClientID:     cfg.Credentials.Google.ClientID,
				ClientSecret: cfg.Credentials.Google.ClientSecret,
			},
		},
		Margin:      cfg.Credentials.RefreshMargin,
		Backoff:     cfg.Credentials.RefreshBackoff,
		MaxAttempts: cfg.Credentials.MaxAttempts,
		Logger:      logger,
	})

	g.index, err = retrieval.New(context.Background(), retrieval.Config{
		Embedder:    retrieval.NewHashEmbedder(cfg.Retrieval.Dimensions),
		Persistence: db,
		Logger:      logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building retrieval index: %w", err)
	}

	g.dispatcher = dispatch.New(dispatch.Config{
		Registry:       g.registry,
		Sessions:       g.sessions,
		Credentials:    g.credentials,
		Persistence:    db,
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		CacheTTL:       cfg.Dispatch.InvocationCacheTTL,
		CacheMax:       cfg.Dispatch.InvocationCacheMax,
		Logger:         logger,
	})

	var telegramClient *telegram.Client
	if cfg.Providers.Telegram.Enabled {
		telegramClient = telegram.NewClient(telegram.Config{
			Token:   cfg.Providers.Telegram.BotToken,
			BaseURL: cfg.Providers.Telegram.APIBase,
		})
		g.poller = telegram.NewPoller(telegram.PollerConfig{
			Client:      telegramClient,
			Relay:       g.events,
			Sessions:    g.sessions,
			Checkpoints: db,
			PollTimeout: cfg.Providers.Telegram.PollTimeout,
			Logger:      logger,
		})
	}

	var gmailClient *gmail.Client
	if cfg.Providers.Gmail.Sender != "" {
		gmailClient = gmail.NewClient(gmail.Config{
			Sender:  cfg.Providers.Gmail.Sender,
			BaseURL: cfg.Providers.Gmail.APIBase,
		})
	}

	sheetsClient := sheets.NewClient(sheets.Config{
		FolderID:      cfg.Providers.Sheets.FolderID,
		SheetsBaseURL: cfg.Providers.Sheets.SheetsAPIBase,
		DriveBaseURL:  cfg.Providers.Sheets.DriveAPIBase,
	})

	builtins.Register(builtins.Deps{
		Registry: g.registry,
		Telegram: telegramClient,
		Gmail:    gmailClient,
		Sheets:   sheetsClient,
		Relay:    g.events,
		Index:    g.index,
		Logger:   logger,
	})

	g.upkeep, err = maintenance.New(maintenance.Config{
		EvictionSchedule:   cfg.Maintenance.EvictionSchedule,
		PreRefreshSchedule: cfg.Maintenance.PreRefreshSchedule,
		RebuildSchedule:    cfg.Maintenance.RebuildSchedule,
		SessionTTL:         cfg.Sessions.TTL,
		RefreshWindow:      cfg.Credentials.RefreshMargin * 10,
		Sessions:           g.sessions,
		Credentials:        g.credentials,
		Index:              g.index,
		Invocations:        db,
		Logger:             logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building maintenance runner: %w", err)
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Run starts the HTTP server, the Telegram poller, and maintenance,
// then blocks until ctx is cancelled and everything has shut down.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	pollerDone := make(chan struct{})
	if g.poller != nil {
		go func() {
			defer close(pollerDone)
			_ = g.poller.Run(ctx)
		}()
	} else {
		close(pollerDone)
	}

	g.upkeep.Start()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Error("http shutdown failed", "error", err)
	}

	<-pollerDone
	g.upkeep.Stop()
	g.dispatcher.Close()
	if err := g.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
