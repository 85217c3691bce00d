// ABOUTME: Cron-scheduled background sweeps: eviction, pre-refresh, index rebuild
// ABOUTME: Jobs log outcomes and never crash the process

package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/errandhq/errand-gateway/internal/store"
)

// SessionEvictor removes sessions idle past a cutoff.
type SessionEvictor interface {
	Evict(ctx context.Context, olderThan time.Time) (int, error)
}

// CredentialRefresher finds and refreshes credentials nearing expiry.
type CredentialRefresher interface {
	ExpiringWithin(ctx context.Context, window time.Duration) ([]*store.Credential, error)
	Refresh(ctx context.Context, provider, account string) (string, error)
}

// IndexRebuilder re-embeds the retrieval index.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
}

// InvocationPruner drops aged idempotency records.
type InvocationPruner interface {
	PruneInvocations(ctx context.Context, olderThan time.Time) (int, error)
}

// Config contains schedules and collaborators for the runner. Empty
// schedules (or a zero SessionTTL for eviction) disable their job.
type Config struct {
	EvictionSchedule   string
	PreRefreshSchedule string
	RebuildSchedule    string

	SessionTTL     time.Duration
	RefreshWindow  time.Duration // default 10m
	InvocationKeep time.Duration // default 24h
	Sessions       SessionEvictor
	Credentials    CredentialRefresher
	Index          IndexRebuilder
	Invocations    InvocationPruner
	Logger         *slog.Logger
}

// Runner owns the cron scheduler for background upkeep.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New wires the configured jobs into a cron scheduler. The scheduler is
// not started until Start is called.
func New(cfg Config) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RefreshWindow == 0 {
		cfg.RefreshWindow = 10 * time.Minute
	}
	if cfg.InvocationKeep == 0 {
		cfg.InvocationKeep = 24 * time.Hour
	}

	r := &Runner{
		cron:   cron.New(),
		logger: cfg.Logger.With("component", "maintenance"),
	}

	if cfg.EvictionSchedule != "" && cfg.SessionTTL > 0 && cfg.Sessions != nil {
		if _, err := r.cron.AddFunc(cfg.EvictionSchedule, func() {
			r.evictSessions(cfg.Sessions, cfg.Invocations, cfg.SessionTTL, cfg.InvocationKeep)
		}); err != nil {
			return nil, fmt.Errorf("eviction schedule %q: %w", cfg.EvictionSchedule, err)
		}
	}
	if cfg.PreRefreshSchedule != "" && cfg.Credentials != nil {
		if _, err := r.cron.AddFunc(cfg.PreRefreshSchedule, func() {
			r.preRefresh(cfg.Credentials, cfg.RefreshWindow)
		}); err != nil {
			return nil, fmt.Errorf("prerefresh schedule %q: %w", cfg.PreRefreshSchedule, err)
		}
	}
	if cfg.RebuildSchedule != "" && cfg.Index != nil {
		if _, err := r.cron.AddFunc(cfg.RebuildSchedule, func() {
			r.rebuildIndex(cfg.Index)
		}); err != nil {
			return nil, fmt.Errorf("rebuild schedule %q: %w", cfg.RebuildSchedule, err)
		}
	}

	return r, nil
}

// Start begins running scheduled jobs.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("maintenance scheduler started", "jobs", len(r.cron.Entries()))
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("maintenance scheduler stopped")
}

func (r *Runner) evictSessions(sessions SessionEvictor, invocations InvocationPruner, ttl, keep time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	evicted, err := sessions.Evict(ctx, time.Now().Add(-ttl))
	if err != nil {
		r.logger.Error("session eviction failed", "error", err)
	} else if evicted > 0 {
		r.logger.Info("evicted idle sessions", "count", evicted, "ttl", ttl)
	}

	if invocations == nil {
		return
	}
	pruned, err := invocations.PruneInvocations(ctx, time.Now().Add(-keep))
	if err != nil {
		r.logger.Error("invocation pruning failed", "error", err)
	} else if pruned > 0 {
		r.logger.Info("pruned invocation records", "count", pruned)
	}
}

func (r *Runner) preRefresh(credentials CredentialRefresher, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expiring, err := credentials.ExpiringWithin(ctx, window)
	if err != nil {
		r.logger.Error("listing expiring credentials failed", "error", err)
		return
	}
	for _, cred := range expiring {
		if _, err := credentials.Refresh(ctx, cred.Provider, cred.Account); err != nil {
			// A revoked grant stays failed until the user re-authorizes;
			// nothing for a background sweep to do but report it.
			r.logger.Warn("pre-refresh failed",
				"provider", cred.Provider, "account", cred.Account, "error", err)
			continue
		}
		r.logger.Debug("pre-refreshed credential",
			"provider", cred.Provider, "account", cred.Account)
	}
}

func (r *Runner) rebuildIndex(index IndexRebuilder) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := index.Rebuild(ctx); err != nil {
		r.logger.Error("index rebuild failed", "error", err)
	}
}
