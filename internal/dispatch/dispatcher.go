// ABOUTME: Command dispatcher driving each invocation through its state machine
// ABOUTME: Resolves tools, acquires credentials, executes under timeout, records history

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand-gateway/internal/creds"
	"github.com/errandhq/errand-gateway/internal/session"
	"github.com/errandhq/errand-gateway/internal/store"
	"github.com/errandhq/errand-gateway/internal/tools"
)

// ErrDuplicateInFlight indicates the invocation id is already executing.
var ErrDuplicateInFlight = errors.New("duplicate invocation in flight")

// Error kinds recorded in session history for failed invocations.
const (
	KindUnknownTool       = "UnknownTool"
	KindInvalidParameters = "InvalidParameters"
	KindAuthInvalidGrant  = "AuthorizationError.InvalidGrant"
	KindAuthTransient     = "AuthorizationError.TransientNetworkError"
	KindExecution         = "ExecutionError"
)

// Command is a structured request to invoke one registered tool in a session.
type Command struct {
	InvocationID string // unique per attempt chain; generated when empty
	SessionID    string
	Tool         string
	Params       map[string]any
}

// Result is the terminal outcome of one dispatched command.
type Result struct {
	InvocationID string
	Tool         string
	Status       string          // store.InvocationCompleted or store.InvocationFailed
	Output       json.RawMessage // handler output for completed invocations
	ErrKind      string          // taxonomy kind for failed invocations
	Err          error           // underlying error, preserved for diagnostics
	Cached       bool            // true when replayed from the idempotency cache
}

// Failed reports whether the invocation terminated in the Failed state.
func (r *Result) Failed() bool {
	return r.Status == store.InvocationFailed
}

// CredentialSource yields access tokens for scoped tools.
type CredentialSource interface {
	Get(ctx context.Context, provider, account string) (string, error)
}

// InvocationPersistence is the durable side of the idempotency cache.
type InvocationPersistence interface {
	GetInvocation(ctx context.Context, id string) (*store.Invocation, error)
	SaveInvocation(ctx context.Context, inv *store.Invocation) error
}

// Config contains construction options for the Dispatcher.
type Config struct {
	Registry       *tools.Registry
	Sessions       *session.Manager
	Credentials    CredentialSource
	Persistence    InvocationPersistence
	DefaultTimeout time.Duration // default 30s
	CacheTTL       time.Duration // default 1h
	CacheMax       int           // default 10000
	Logger         *slog.Logger
}

// Dispatcher routes commands through Received → Resolved →
// AuthorizedOrSkipped → Executing → Completed|Failed. The machine is
// deterministic and re-entrant: re-dispatching a completed invocation id
// replays the cached result without re-invoking the collaborator.
type Dispatcher struct {
	registry    *tools.Registry
	sessions    *session.Manager
	credentials CredentialSource
	db          InvocationPersistence
	timeout     time.Duration
	cache       *invocationCache
	logger      *slog.Logger
}

// New creates a Dispatcher from the given configuration.
func New(cfg Config) *Dispatcher {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheMax == 0 {
		cfg.CacheMax = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:    cfg.Registry,
		sessions:    cfg.Sessions,
		credentials: cfg.Credentials,
		db:          cfg.Persistence,
		timeout:     cfg.DefaultTimeout,
		cache:       newInvocationCache(cfg.CacheTTL, cfg.CacheMax),
		logger:      cfg.Logger.With("component", "dispatch"),
	}
}

// Close releases the dispatcher's background resources.
func (d *Dispatcher) Close() {
	d.cache.close()
}

// Dispatch runs one command to a terminal state. The returned error is
// non-nil only for ErrDuplicateInFlight and infrastructure failures;
// tool-level failures come back as a Result with Status failed and the
// terminating kind in ErrKind.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.InvocationID == "" {
		cmd.InvocationID = uuid.New().String()
	}

	// Received: idempotency check
	if cached, seen := d.cache.begin(cmd.InvocationID); seen {
		if cached != nil {
			d.logger.Debug("replaying cached invocation",
				"invocation_id", cmd.InvocationID, "tool", cached.Tool)
			replay := *cached
			replay.Cached = true
			return &replay, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInFlight, cmd.InvocationID)
	}

	// Restart case: a completed record may exist only on disk.
	if prior, err := d.db.GetInvocation(ctx, cmd.InvocationID); err == nil &&
		prior.Status == store.InvocationCompleted {
		result := &Result{
			InvocationID: prior.ID,
			Tool:         prior.Tool,
			Status:       prior.Status,
			Output:       json.RawMessage(prior.Result),
			Cached:       true,
		}
		d.cache.complete(cmd.InvocationID, result)
		return result, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		d.cache.release(cmd.InvocationID)
		return nil, fmt.Errorf("checking invocation record: %w", err)
	}

	// Resolved: registry lookup and schema validation
	desc, err := d.registry.Resolve(cmd.Tool)
	if err != nil {
		return d.fail(ctx, cmd, KindUnknownTool, err)
	}
	if err := desc.Validate(cmd.Params); err != nil {
		return d.fail(ctx, cmd, KindInvalidParameters, err)
	}

	// AuthorizedOrSkipped through Completed|Failed run under the session's
	// exclusive scope: commands on the same session serialize end to end.
	var result *Result
	lockErr := d.sessions.WithExclusiveAccess(ctx, cmd.SessionID, func(s *session.Session) error {
		var token string
		if desc.Scope != "" {
			var authErr error
			token, authErr = d.authorize(ctx, desc, s)
			if authErr != nil {
				kind := KindAuthTransient
				if errors.Is(authErr, creds.ErrInvalidGrant) || errors.Is(authErr, creds.ErrNoCredential) {
					kind = KindAuthInvalidGrant
				}
				result = d.failLocked(ctx, s, cmd, kind, authErr)
				return nil
			}
		}

		// Executing: collaborator call under timeout
		timeout := d.timeout
		if desc.Timeout > 0 {
			timeout = time.Duration(desc.Timeout) * time.Second
		}
		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		d.logger.Info("→ executing tool",
			"tool", cmd.Tool, "invocation_id", cmd.InvocationID, "session_id", cmd.SessionID)

		output, execErr := desc.Handler(execCtx, tools.Invocation{
			ID:          cmd.InvocationID,
			SessionID:   cmd.SessionID,
			Params:      cmd.Params,
			AccessToken: token,
		})
		if execErr != nil {
			result = d.failLocked(ctx, s, cmd, KindExecution,
				fmt.Errorf("executing %s: %w", cmd.Tool, execErr))
			return nil
		}

		// Completed: record result and commit the idempotency entry
		result = &Result{
			InvocationID: cmd.InvocationID,
			Tool:         cmd.Tool,
			Status:       store.InvocationCompleted,
			Output:       output,
		}
		if err := d.sessions.AppendTurnLocked(ctx, s, &store.Turn{
			Role:    "tool",
			Content: string(output),
		}); err != nil {
			return fmt.Errorf("recording result turn: %w", err)
		}
		if err := d.db.SaveInvocation(ctx, &store.Invocation{
			ID:        cmd.InvocationID,
			SessionID: cmd.SessionID,
			Tool:      cmd.Tool,
			Status:    store.InvocationCompleted,
			Result:    string(output),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("persisting invocation: %w", err)
		}
		d.cache.complete(cmd.InvocationID, result)

		d.logger.Info("← tool completed",
			"tool", cmd.Tool, "invocation_id", cmd.InvocationID)
		return nil
	})
	if lockErr != nil {
		d.cache.release(cmd.InvocationID)
		return nil, lockErr
	}
	return result, nil
}

// authorize fetches the access token for a scoped tool using the
// session's bound account. A session with no binding for the provider
// needs (re-)authorization, which surfaces like a revoked grant.
func (d *Dispatcher) authorize(ctx context.Context, desc *tools.Descriptor, s *session.Session) (string, error) {
	account := s.Bindings[desc.Provider]
	if account == "" {
		return "", fmt.Errorf("%w: no %s credential bound to session %s",
			creds.ErrInvalidGrant, desc.Provider, s.ID)
	}
	return d.credentials.Get(ctx, desc.Provider, account)
}

// fail records a terminal failure that happened outside the session scope.
func (d *Dispatcher) fail(ctx context.Context, cmd Command, kind string, cause error) (*Result, error) {
	var result *Result
	err := d.sessions.WithExclusiveAccess(ctx, cmd.SessionID, func(s *session.Session) error {
		result = d.failLocked(ctx, s, cmd, kind, cause)
		return nil
	})
	if err != nil {
		d.cache.release(cmd.InvocationID)
		return nil, err
	}
	return result, nil
}

// failLocked records a terminal failure into history and the invocation
// table, then releases the in-flight marker so the id may be retried.
// Callers must hold the session's exclusive scope.
func (d *Dispatcher) failLocked(ctx context.Context, s *session.Session, cmd Command, kind string, cause error) *Result {
	d.logger.Warn("invocation failed",
		"tool", cmd.Tool, "invocation_id", cmd.InvocationID,
		"kind", kind, "error", cause)

	if err := d.sessions.AppendTurnLocked(ctx, s, &store.Turn{
		Role:    "tool",
		Content: cause.Error(),
		ErrKind: kind,
	}); err != nil {
		d.logger.Error("failed to record failure turn",
			"invocation_id", cmd.InvocationID, "error", err)
	}
	if err := d.db.SaveInvocation(ctx, &store.Invocation{
		ID:        cmd.InvocationID,
		SessionID: cmd.SessionID,
		Tool:      cmd.Tool,
		Status:    store.InvocationFailed,
		ErrKind:   kind,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		d.logger.Error("failed to persist failed invocation",
			"invocation_id", cmd.InvocationID, "error", err)
	}

	// Failures are retryable with the same invocation id; only completed
	// results replay from the cache.
	d.cache.release(cmd.InvocationID)

	return &Result{
		InvocationID: cmd.InvocationID,
		Tool:         cmd.Tool,
		Status:       store.InvocationFailed,
		ErrKind:      kind,
		Err:          cause,
	}
}
