// ABOUTME: Tests for the session manager: exclusive access, history, bindings
// ABOUTME: Verifies concurrent commands on one session serialize cleanly

package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhq/errand-gateway/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreate(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", s.ID)
	assert.Empty(t, s.History)

	// Same id returns the same session
	require.NoError(t, m.AppendTurn(ctx, "chat-1", &store.Turn{Role: "user", Content: "hi"}))
	s, err = m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	assert.Len(t, s.History, 1)
}

func TestHistoryHydratesFromStore(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()

	m1 := NewManager(db, nil)
	require.NoError(t, m1.AppendTurn(ctx, "chat-1", &store.Turn{Role: "user", Content: "hello"}))
	require.NoError(t, m1.AppendTurn(ctx, "chat-1", &store.Turn{Role: "assistant", Content: "hi"}))
	require.NoError(t, m1.BindCredential(ctx, "chat-1", "google", "bot@example.com"))

	// A fresh manager over the same store sees the persisted state.
	m2 := NewManager(db, nil)
	s, err := m2.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, s.History, 2)
	assert.Equal(t, "hello", s.History[0].Content)
	assert.Equal(t, "bot@example.com", s.Bindings["google"])
}

func TestWithExclusiveAccessSerializes(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "at most one caller inside the exclusive scope")
}

func TestWithExclusiveAccessReleasesOnPanic(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error {
			panic("handler blew up")
		})
	}()

	// The lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session lock was not released after panic")
	}
}

func TestWithExclusiveAccessReleasesOnError(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	wantErr := errors.New("fn failed")
	err := m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	err = m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error { return nil })
	assert.NoError(t, err)
}

func TestConcurrentAppendsEquivalentToSerialOrder(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error {
				// Two appends inside one exclusive scope must stay adjacent.
				if err := m.AppendTurnLocked(ctx, s, &store.Turn{
					Role: "user", Content: fmt.Sprintf("q-%d", i),
				}); err != nil {
					return err
				}
				return m.AppendTurnLocked(ctx, s, &store.Turn{
					Role: "assistant", Content: fmt.Sprintf("a-%d", i),
				})
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, s.History, 2*writers)

	// Each question is immediately followed by its answer: no interleaved
	// partial mutation.
	for i := 0; i < len(s.History); i += 2 {
		q := s.History[i]
		a := s.History[i+1]
		assert.Equal(t, "user", q.Role)
		assert.Equal(t, "assistant", a.Role)
		assert.Equal(t, q.Content[2:], a.Content[2:], "answer %s does not match question %s", a.Content, q.Content)
	}
}

func TestIndependentSessionsDoNotBlock(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = m.WithExclusiveAccess(ctx, "busy", func(s *Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	done := make(chan struct{})
	go func() {
		_ = m.WithExclusiveAccess(ctx, "other", func(s *Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent session blocked behind unrelated lock")
	}
}

func TestConfirmations(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	id, err := m.RequireConfirmation(ctx, "chat-1", "send this email?")
	require.NoError(t, err)

	s, err := m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	require.Contains(t, s.Pending, id)
	assert.Equal(t, "send this email?", s.Pending[id].Prompt)

	require.NoError(t, m.ResolveConfirmation(ctx, "chat-1", id))
	assert.ErrorIs(t, m.ResolveConfirmation(ctx, "chat-1", id), ErrUnknownConfirmation)
}

func TestEvict(t *testing.T) {
	db := createTestStore(t)
	m := NewManager(db, nil)
	ctx := context.Background()

	require.NoError(t, m.AppendTurn(ctx, "stale", &store.Turn{Role: "user", Content: "old"}))

	n, err := m.Evict(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Evicted session starts fresh on next access.
	s, err := m.GetOrCreate(ctx, "stale")
	require.NoError(t, err)
	assert.Empty(t, s.History)
}

func TestEvictWaitsForExclusiveScope(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	require.NoError(t, m.AppendTurn(ctx, "chat-1", &store.Turn{Role: "user", Content: "hi"}))

	held := make(chan struct{})
	release := make(chan struct{})
	var inside atomic.Int32
	go func() {
		_ = m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error {
			inside.Add(1)
			close(held)
			<-release
			inside.Add(-1)
			return nil
		})
	}()
	<-held

	// The sweep covers the session that is mid-command. It must wait for
	// the exclusive scope instead of yanking the entry out from under it.
	evicted := make(chan struct{})
	go func() {
		defer close(evicted)
		n, err := m.Evict(ctx, time.Now().Add(time.Minute))
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	}()

	select {
	case <-evicted:
		t.Fatal("eviction completed while the session was mid-command")
	case <-time.After(50 * time.Millisecond):
	}

	overlap := make(chan int32, 1)
	go func() {
		_ = m.WithExclusiveAccess(ctx, "chat-1", func(s *Session) error {
			overlap <- inside.Load()
			return nil
		})
	}()

	close(release)
	<-evicted
	assert.Zero(t, <-overlap, "second command entered while the first held the session")
}

func TestEvictKeepsLiveSessionState(t *testing.T) {
	m := NewManager(createTestStore(t), nil)
	ctx := context.Background()

	id, err := m.RequireConfirmation(ctx, "chat-1", "send this email?")
	require.NoError(t, err)

	// Nothing is idle past the cutoff, so the sweep must leave the
	// session and its pending confirmation untouched.
	n, err := m.Evict(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s, err := m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	assert.Contains(t, s.Pending, id)
}

// flakyStore delegates to SQLite but can fail GetTurns on demand, and
// can hold a hydration open so a second caller piles up behind it.
type flakyStore struct {
	*store.SQLiteStore

	mu       sync.Mutex
	turnsErr error
	inTurns  chan struct{}
	holdTurn chan struct{}
}

func (f *flakyStore) GetTurns(ctx context.Context, sessionID string) ([]*store.Turn, error) {
	f.mu.Lock()
	failWith := f.turnsErr
	in, hold := f.inTurns, f.holdTurn
	f.inTurns, f.holdTurn = nil, nil
	f.mu.Unlock()

	if in != nil {
		close(in)
		<-hold
	}
	if failWith != nil {
		return nil, failWith
	}
	return f.SQLiteStore.GetTurns(ctx, sessionID)
}

func TestFailedHydrationFailsEveryWaiter(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()

	seed := NewManager(db, nil)
	require.NoError(t, seed.AppendTurn(ctx, "chat-1", &store.Turn{Role: "user", Content: "hello"}))

	f := &flakyStore{
		SQLiteStore: db,
		turnsErr:    errors.New("disk read failed"),
		inTurns:     make(chan struct{}),
		holdTurn:    make(chan struct{}),
	}
	in, hold := f.inTurns, f.holdTurn
	m := NewManager(f, nil)

	first := make(chan error, 1)
	go func() {
		_, err := m.GetOrCreate(ctx, "chat-1")
		first <- err
	}()
	<-in

	// A caller arriving mid-hydration must get the failure too, never a
	// blank session standing in for the real history.
	second := make(chan error, 1)
	go func() {
		_, err := m.GetOrCreate(ctx, "chat-1")
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(hold)

	assert.Error(t, <-first)
	assert.Error(t, <-second)

	// Once the store recovers, the next access re-hydrates cleanly.
	f.mu.Lock()
	f.turnsErr = nil
	f.mu.Unlock()
	s, err := m.GetOrCreate(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, s.History, 1)
	assert.Equal(t, "hello", s.History[0].Content)
}
