// ABOUTME: Per-conversation session state with exclusive-access scoping
// ABOUTME: History is append-only and hydrated from the store on first access

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand-gateway/internal/store"
)

// ErrUnknownConfirmation indicates no pending confirmation matches the id.
var ErrUnknownConfirmation = errors.New("unknown confirmation")

// Persistence is the durable backing for sessions.
type Persistence interface {
	EnsureSession(ctx context.Context, sessionID string) (bool, error)
	AppendTurn(ctx context.Context, turn *store.Turn) error
	GetTurns(ctx context.Context, sessionID string) ([]*store.Turn, error)
	SaveBinding(ctx context.Context, b *store.Binding) error
	GetBindings(ctx context.Context, sessionID string) ([]*store.Binding, error)
	EvictSessions(ctx context.Context, olderThan time.Time) ([]string, error)
}

// Confirmation is a pending question awaiting a user decision.
type Confirmation struct {
	ID        string
	Prompt    string
	CreatedAt time.Time
}

// Session is the in-memory state for one conversation.
type Session struct {
	ID       string
	History  []*store.Turn
	Pending  map[string]*Confirmation
	Bindings map[string]string // provider -> account
}

// sessionEntry pairs a session with its exclusive-access lock. err is
// set when hydration failed; such an entry is dead and every caller
// that reached it before it was forgotten gets the error back.
type sessionEntry struct {
	mu      sync.Mutex
	err     error
	session *Session
}

// Manager holds per-conversation state keyed by session id. Sessions are
// created on first use and never destroyed automatically; eviction runs
// through the maintenance sweep.
type Manager struct {
	db     Persistence
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewManager creates a session manager backed by the given persistence.
func NewManager(db Persistence, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:       db,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*sessionEntry),
	}
}

// entry returns the sessionEntry for an id, creating and hydrating it on
// first access.
func (m *Manager) entry(ctx context.Context, sessionID string) (*sessionEntry, error) {
	m.mu.Lock()
	if e, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		// Wait out an in-flight hydration, then refuse a dead entry so
		// no caller ever sees a blank session in place of its history.
		e.mu.Lock()
		err := e.err
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	e := &sessionEntry{session: &Session{
		ID:       sessionID,
		Pending:  make(map[string]*Confirmation),
		Bindings: make(map[string]string),
	}}
	// Lock before publishing so later callers block until hydration settles.
	e.mu.Lock()
	defer e.mu.Unlock()
	m.sessions[sessionID] = e
	m.mu.Unlock()

	created, err := m.db.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, m.hydrateFailed(e, sessionID, fmt.Errorf("ensuring session %s: %w", sessionID, err))
	}
	if !created {
		turns, err := m.db.GetTurns(ctx, sessionID)
		if err != nil {
			return nil, m.hydrateFailed(e, sessionID, fmt.Errorf("hydrating session %s: %w", sessionID, err))
		}
		e.session.History = turns

		bindings, err := m.db.GetBindings(ctx, sessionID)
		if err != nil {
			return nil, m.hydrateFailed(e, sessionID, fmt.Errorf("hydrating bindings for %s: %w", sessionID, err))
		}
		for _, b := range bindings {
			e.session.Bindings[b.Provider] = b.Account
		}
	}

	m.logger.Debug("session opened", "session_id", sessionID, "created", created, "turns", len(e.session.History))
	return e, nil
}

// hydrateFailed marks the entry dead and drops it from the map so the
// next access retries instead of serving a session with missing history.
// Callers must hold e.mu.
func (m *Manager) hydrateFailed(e *sessionEntry, sessionID string, err error) error {
	e.err = err
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return err
}

// GetOrCreate returns a snapshot of the session's state. The returned
// Session is a copy; mutations go through the manager's operations.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// WithExclusiveAccess runs fn while holding the session's lock. The lock
// is released on every exit path, including a panic inside fn. At most
// one caller per session id is inside fn at any instant; commands on
// different sessions run independently.
func (m *Manager) WithExclusiveAccess(ctx context.Context, sessionID string, fn func(*Session) error) error {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// AppendTurn appends a turn to the session history and persists it.
// The turn id and timestamp are filled in when empty.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn *store.Turn) error {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return m.appendLocked(ctx, e.session, turn)
}

// appendLocked persists and appends a turn. Callers must hold the entry lock.
func (m *Manager) appendLocked(ctx context.Context, s *Session, turn *store.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	turn.SessionID = s.ID

	if err := m.db.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("persisting turn: %w", err)
	}
	s.History = append(s.History, turn)
	return nil
}

// AppendTurnLocked appends a turn from inside a WithExclusiveAccess scope.
// The caller already holds the session lock via the enclosing scope.
func (m *Manager) AppendTurnLocked(ctx context.Context, s *Session, turn *store.Turn) error {
	return m.appendLocked(ctx, s, turn)
}

// BindCredential associates a provider account with the session.
func (m *Manager) BindCredential(ctx context.Context, sessionID, provider, account string) error {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.db.SaveBinding(ctx, &store.Binding{
		SessionID: sessionID,
		Provider:  provider,
		Account:   account,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("persisting binding: %w", err)
	}
	e.session.Bindings[provider] = account

	m.logger.Info("credential bound", "session_id", sessionID, "provider", provider, "account", account)
	return nil
}

// BoundAccount returns the account bound to a provider for the session,
// or empty when none is bound.
func (m *Manager) BoundAccount(ctx context.Context, sessionID, provider string) (string, error) {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Bindings[provider], nil
}

// RequireConfirmation records a pending confirmation and returns its id.
func (m *Manager) RequireConfirmation(ctx context.Context, sessionID, prompt string) (string, error) {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Confirmation{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
	e.session.Pending[c.ID] = c
	return c.ID, nil
}

// ResolveConfirmation removes a pending confirmation.
// Returns ErrUnknownConfirmation if the id is not pending.
func (m *Manager) ResolveConfirmation(ctx context.Context, sessionID, confirmationID string) error {
	e, err := m.entry(ctx, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.session.Pending[confirmationID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConfirmation, confirmationID)
	}
	delete(e.session.Pending, confirmationID)
	return nil
}

// Evict removes sessions idle since before the cutoff from the store and
// drops their in-memory entries. Only entries whose sessions the store
// actually evicted are touched; live sessions keep their lock and any
// pending confirmations. Maintenance operation, not hot path.
func (m *Manager) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	evicted, err := m.db.EvictSessions(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	for _, id := range evicted {
		m.mu.Lock()
		e, ok := m.sessions[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		// Take the session lock so an in-flight exclusive scope finishes
		// before its entry disappears.
		e.mu.Lock()
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		e.mu.Unlock()
	}

	return len(evicted), nil
}

// snapshot copies session state for callers outside the exclusive scope.
func snapshot(s *Session) *Session {
	out := &Session{
		ID:       s.ID,
		History:  make([]*store.Turn, len(s.History)),
		Pending:  make(map[string]*Confirmation, len(s.Pending)),
		Bindings: make(map[string]string, len(s.Bindings)),
	}
	copy(out.History, s.History)
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	for k, v := range s.Bindings {
		out.Bindings[k] = v
	}
	return out
}
