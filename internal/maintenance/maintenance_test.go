// ABOUTME: Tests for maintenance job wiring and sweep behavior
// ABOUTME: Invokes the sweep functions directly; cron scheduling is robfig's concern

package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhq/errand-gateway/internal/store"
)

type fakeEvictor struct {
	cutoff  time.Time
	evicted int
}

func (f *fakeEvictor) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	f.cutoff = olderThan
	return f.evicted, nil
}

type fakePruner struct {
	pruned int
}

func (f *fakePruner) PruneInvocations(ctx context.Context, olderThan time.Time) (int, error) {
	return f.pruned, nil
}

type fakeRefresher struct {
	expiring  []*store.Credential
	refreshed []string
	err       error
}

func (f *fakeRefresher) ExpiringWithin(ctx context.Context, window time.Duration) ([]*store.Credential, error) {
	return f.expiring, nil
}

func (f *fakeRefresher) Refresh(ctx context.Context, provider, account string) (string, error) {
	f.refreshed = append(f.refreshed, provider+"/"+account)
	return "tok", f.err
}

type fakeRebuilder struct {
	calls int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) error {
	f.calls++
	return nil
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Config{
		EvictionSchedule: "not a cron expr",
		SessionTTL:       time.Hour,
		Sessions:         &fakeEvictor{},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eviction schedule")
}

func TestZeroTTLDisablesEviction(t *testing.T) {
	r := newRunner(t, Config{
		EvictionSchedule: "@hourly",
		SessionTTL:       0,
		Sessions:         &fakeEvictor{},
	})
	assert.Empty(t, r.cron.Entries())
}

func TestJobsRegistered(t *testing.T) {
	r := newRunner(t, Config{
		EvictionSchedule:   "@hourly",
		PreRefreshSchedule: "@every 5m",
		RebuildSchedule:    "@daily",
		SessionTTL:         time.Hour,
		Sessions:           &fakeEvictor{},
		Credentials:        &fakeRefresher{},
		Index:              &fakeRebuilder{},
	})
	assert.Len(t, r.cron.Entries(), 3)
}

func TestEvictSweepUsesTTLCutoff(t *testing.T) {
	evictor := &fakeEvictor{evicted: 3}
	pruner := &fakePruner{pruned: 2}
	r := newRunner(t, Config{})

	before := time.Now().Add(-2 * time.Hour)
	r.evictSessions(evictor, pruner, 2*time.Hour, 24*time.Hour)

	assert.WithinDuration(t, before, evictor.cutoff, time.Minute)
}

func TestPreRefreshSweep(t *testing.T) {
	refresher := &fakeRefresher{expiring: []*store.Credential{
		{Provider: "google", Account: "a@example.com"},
		{Provider: "google", Account: "b@example.com"},
	}}
	r := newRunner(t, Config{})

	r.preRefresh(refresher, 10*time.Minute)
	assert.Equal(t, []string{"google/a@example.com", "google/b@example.com"}, refresher.refreshed)
}

func TestPreRefreshContinuesPastFailures(t *testing.T) {
	refresher := &fakeRefresher{
		expiring: []*store.Credential{
			{Provider: "google", Account: "bad@example.com"},
			{Provider: "google", Account: "good@example.com"},
		},
		err: errors.New("invalid_grant"),
	}
	r := newRunner(t, Config{})

	r.preRefresh(refresher, 10*time.Minute)
	assert.Len(t, refresher.refreshed, 2, "a failed refresh must not stop the sweep")
}

func TestRebuildSweep(t *testing.T) {
	rebuilder := &fakeRebuilder{}
	r := newRunner(t, Config{})

	r.rebuildIndex(rebuilder)
	assert.Equal(t, 1, rebuilder.calls)
}
