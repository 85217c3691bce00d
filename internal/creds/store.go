// ABOUTME: OAuth2 credential store with refresh-on-demand and per-account de-duplication
// ABOUTME: Refreshes are durably persisted before commit and classified as terminal or retryable

package creds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/errandhq/errand-gateway/internal/store"
)

// ErrNoCredential indicates no credential is stored for the (provider, account) pair.
var ErrNoCredential = errors.New("no credential")

// ErrInvalidGrant indicates the refresh token was revoked or rejected.
// The credential is marked invalid until re-authorized; retrying is useless.
var ErrInvalidGrant = errors.New("invalid grant")

// ErrTransient indicates a retryable network or server failure during refresh.
var ErrTransient = errors.New("transient refresh failure")

// Endpoint describes the OAuth client used to refresh one provider's tokens.
type Endpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Persistence is the durable backing for credentials.
type Persistence interface {
	GetCredential(ctx context.Context, provider, account string) (*store.Credential, error)
	ReplaceCredential(ctx context.Context, cred *store.Credential) error
	MarkCredentialInvalid(ctx context.Context, provider, account string) error
	ListCredentials(ctx context.Context) ([]*store.Credential, error)
}

// Config contains construction options for the Store.
type Config struct {
	Persistence Persistence
	Endpoints   map[string]Endpoint // provider -> OAuth client
	Margin      time.Duration       // refresh when expiry is within this margin, default 60s
	Backoff     time.Duration       // base backoff between transient retries, default 500ms
	MaxAttempts int                 // bounded transient retries, default 4
	HTTPClient  *http.Client        // nil uses http.DefaultClient
	Logger      *slog.Logger
	Now         func() time.Time // test hook
}

// refreshCall tracks one in-flight refresh so concurrent getters share its result.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Store holds and refreshes OAuth2 credentials. Credentials are mutated
// only through the de-duplicated refresh path and Authorize.
type Store struct {
	db          Persistence
	endpoints   map[string]Endpoint
	margin      time.Duration
	backoff     time.Duration
	maxAttempts int
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*refreshCall // "provider/account" -> in-flight refresh
}

// New creates a credential store from the given configuration.
func New(cfg Config) *Store {
	if cfg.Margin == 0 {
		cfg.Margin = 60 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		db:          cfg.Persistence,
		endpoints:   cfg.Endpoints,
		margin:      cfg.Margin,
		backoff:     cfg.Backoff,
		maxAttempts: cfg.MaxAttempts,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger.With("component", "creds"),
		now:         cfg.Now,
	}
}

// Get returns a valid access token for the (provider, account) pair,
// refreshing first when the stored token expires within the safety margin.
// Concurrent calls observing an expiring token share a single refresh.
func (s *Store) Get(ctx context.Context, provider, account string) (string, error) {
	cred, err := s.db.GetCredential(ctx, provider, account)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s/%s", ErrNoCredential, provider, account)
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	if cred.Invalid {
		return "", fmt.Errorf("%w: %s/%s needs re-authorization", ErrInvalidGrant, provider, account)
	}

	if cred.Expiry.After(s.now().Add(s.margin)) {
		return cred.AccessToken, nil
	}

	return s.refresh(ctx, provider, account)
}

// Refresh forces a (de-duplicated) refresh for the pair regardless of expiry.
func (s *Store) Refresh(ctx context.Context, provider, account string) (string, error) {
	return s.refresh(ctx, provider, account)
}

// refresh joins or starts the single in-flight refresh for the pair.
func (s *Store) refresh(ctx context.Context, provider, account string) (string, error) {
	key := provider + "/" + account

	s.mu.Lock()
	if call, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	if s.inflight == nil {
		s.inflight = make(map[string]*refreshCall)
	}
	s.inflight[key] = call
	s.mu.Unlock()

	call.token, call.err = s.doRefresh(ctx, provider, account)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

// doRefresh exchanges the refresh token with the provider's token endpoint,
// retrying transient failures with capped exponential backoff. The new
// token pair is written to the store before the refresh is considered
// committed.
func (s *Store) doRefresh(ctx context.Context, provider, account string) (string, error) {
	ep, ok := s.endpoints[provider]
	if !ok {
		return "", fmt.Errorf("no OAuth endpoint configured for provider %q", provider)
	}

	cred, err := s.db.GetCredential(ctx, provider, account)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s/%s", ErrNoCredential, provider, account)
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: ep.TokenURL},
	}
	octx := context.WithValue(ctx, oauth2.HTTPClient, s.client)

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.backoff << (attempt - 1)
			s.logger.Debug("retrying token refresh",
				"provider", provider, "account", account,
				"attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		tok, err := conf.TokenSource(octx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err == nil {
			refreshToken := tok.RefreshToken
			if refreshToken == "" {
				// Providers commonly omit the refresh token on refresh; the old one stays valid.
				refreshToken = cred.RefreshToken
			}
			next := &store.Credential{
				Provider:     provider,
				Account:      account,
				AccessToken:  tok.AccessToken,
				RefreshToken: refreshToken,
				Expiry:       tok.Expiry,
				Scopes:       cred.Scopes,
			}
			// Durable write first: the refresh is not committed until it persists.
			if err := s.db.ReplaceCredential(ctx, next); err != nil {
				return "", fmt.Errorf("persisting refreshed credential: %w", err)
			}
			s.logger.Info("credential refreshed",
				"provider", provider, "account", account, "expiry", tok.Expiry)
			return tok.AccessToken, nil
		}

		if isInvalidGrant(err) {
			if markErr := s.db.MarkCredentialInvalid(ctx, provider, account); markErr != nil {
				s.logger.Warn("failed to mark credential invalid",
					"provider", provider, "account", account, "error", markErr)
			}
			s.logger.Warn("refresh token rejected",
				"provider", provider, "account", account, "error", err)
			return "", fmt.Errorf("%w: %s/%s: %v", ErrInvalidGrant, provider, account, err)
		}

		lastErr = err
		s.logger.Warn("transient refresh failure",
			"provider", provider, "account", account,
			"attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("%w: %s/%s after %d attempts: %v",
		ErrTransient, provider, account, s.maxAttempts, lastErr)
}

// isInvalidGrant reports whether a token endpoint error is terminal.
// The OAuth2 spec uses error code "invalid_grant" for revoked or expired
// refresh tokens.
func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" {
		return true
	}
	// Some providers put the code only in the body
	return strings.Contains(string(re.Body), "invalid_grant")
}

// ExpiringWithin returns stored credentials whose expiry falls within the
// given window and that are not marked invalid. Used by the maintenance
// pre-refresh sweep.
func (s *Store) ExpiringWithin(ctx context.Context, window time.Duration) ([]*store.Credential, error) {
	all, err := s.db.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(window)
	var out []*store.Credential
	for _, c := range all {
		if !c.Invalid && c.Expiry.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}
