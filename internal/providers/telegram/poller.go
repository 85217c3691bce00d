// ABOUTME: Long-poll loop feeding inbound Telegram updates into the event relay
// ABOUTME: Persists the last consumed update id so restarts resume without gaps

package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/errandhq/errand-gateway/internal/relay"
	"github.com/errandhq/errand-gateway/internal/store"
)

// Provider is the stream name updates are published under.
const Provider = "telegram"

// Checkpoints persists the poller's position in the update feed.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, provider string) (uint64, error)
	SaveCheckpoint(ctx context.Context, provider string, seq uint64) error
}

// HistoryAppender records inbound messages as session turns.
type HistoryAppender interface {
	AppendTurn(ctx context.Context, sessionID string, turn *store.Turn) error
}

// PollerConfig contains construction options for the Poller.
type PollerConfig struct {
	Client      *Client
	Relay       *relay.Relay
	Sessions    HistoryAppender
	Checkpoints Checkpoints
	PollTimeout time.Duration // long-poll hold time, default 30s
	Logger      *slog.Logger
}

// Poller drives getUpdates and fans results into the relay and session
// history. Each chat is a session keyed by its chat id. Update ids are
// published as relay sequence numbers, so provider re-delivery after a
// crash is suppressed downstream.
type Poller struct {
	client      *Client
	relay       *relay.Relay
	sessions    HistoryAppender
	checkpoints Checkpoints
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewPoller creates a Poller from the given configuration.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		client:      cfg.Client,
		relay:       cfg.Relay,
		sessions:    cfg.Sessions,
		checkpoints: cfg.Checkpoints,
		pollTimeout: cfg.PollTimeout,
		logger:      cfg.Logger.With("component", "telegram-poller"),
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried
// with a short backoff; the loop itself never fails.
func (p *Poller) Run(ctx context.Context) error {
	last, err := p.checkpoints.GetCheckpoint(ctx, Provider)
	if err != nil {
		p.logger.Warn("reading checkpoint failed, starting from live", "error", err)
	}
	offset := int64(last) + 1

	p.logger.Info("telegram poller started", "offset", offset)

	// Writes for already-consumed updates outlive a shutdown: once an
	// update has been published it must be checkpointed and recorded, or
	// a restart replays it into session history.
	persistCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed, backing off", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, update := range updates {
			p.consume(persistCtx, update)
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
		}
		if len(updates) > 0 {
			if err := p.checkpoints.SaveCheckpoint(persistCtx, Provider, uint64(offset-1)); err != nil {
				p.logger.Error("saving checkpoint failed", "error", err)
			}
		}
	}
}

// consume publishes one update to the relay and appends it to the
// owning session's history.
func (p *Poller) consume(ctx context.Context, update Update) {
	if update.Message == nil {
		p.logger.Debug("skipping update without message", "update_id", update.UpdateID)
		return
	}
	msg := update.Message
	sessionID := strconv.FormatInt(msg.Chat.ID, 10)

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("encoding update payload failed", "update_id", update.UpdateID, "error", err)
		return
	}

	p.relay.Publish(relay.Event{
		Provider:  Provider,
		SessionID: sessionID,
		Seq:       update.UpdateID,
		Payload:   payload,
		At:        time.Unix(msg.Date, 0).UTC(),
	})

	if err := p.sessions.AppendTurn(ctx, sessionID, &store.Turn{
		Role:    "event",
		Content: msg.Text,
	}); err != nil {
		p.logger.Error("recording inbound message failed",
			"session_id", sessionID, "update_id", update.UpdateID, "error", err)
	}
}
