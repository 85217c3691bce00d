// ABOUTME: Ordered, resumable fan-out of inbound provider events to subscribers
// ABOUTME: Bounded per-stream replay window with gap detection and slow-consumer drop

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrGapDetected indicates the requested resume point has aged out of
// the retained window; the subscriber must resynchronize with a full
// fetch instead of relying on replay.
var ErrGapDetected = errors.New("gap detected: resume point older than retained window")

// Event is one inbound provider event. Seq is monotonic per provider
// stream and is the basis for resume-after-disconnect.
type Event struct {
	Provider  string
	SessionID string // empty for broadcast
	Seq       int64
	Payload   json.RawMessage
	At        time.Time
}

// Subscription is one consumer's view of a provider stream. Events
// arrive on C in strictly increasing Seq order. C is closed when the
// subscriber is dropped for falling behind or when Close is called.
type Subscription struct {
	ID string
	C  <-chan Event

	relay    *Relay
	provider string
}

// Close detaches the subscription from its stream.
func (s *Subscription) Close() {
	s.relay.unsubscribe(s.provider, s.ID)
}

// subscriber is the relay-side state for one Subscription.
type subscriber struct {
	id            string
	ch            chan Event
	lastDelivered int64
}

// stream holds one provider's retained events and attached subscribers.
type stream struct {
	events         []Event // ascending Seq, at most window entries
	lastSeq        int64   // highest Seq ever published
	evictedThrough int64   // highest Seq no longer retained, 0 when none
	subscribers    map[string]*subscriber
}

// Config contains construction options for the Relay.
type Config struct {
	Window           int // retained events per provider stream, default 256
	SubscriberBuffer int // per-subscriber channel slack beyond the window, default 64
	Logger           *slog.Logger
}

// Relay republishes provider event feeds as ordered, resumable streams.
// Publishing never blocks on consumers: a subscriber that cannot keep up
// is dropped and must reconnect.
type Relay struct {
	mu      sync.Mutex
	streams map[string]*stream
	window  int
	slack   int
	logger  *slog.Logger
}

// New creates a Relay from the given configuration.
func New(cfg Config) *Relay {
	if cfg.Window <= 0 {
		cfg.Window = 256
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		streams: make(map[string]*stream),
		window:  cfg.Window,
		slack:   cfg.SubscriberBuffer,
		logger:  cfg.Logger.With("component", "relay"),
	}
}

func (r *Relay) streamLocked(provider string) *stream {
	st, ok := r.streams[provider]
	if !ok {
		st = &stream{subscribers: make(map[string]*subscriber)}
		r.streams[provider] = st
	}
	return st
}

// Publish appends an event to its provider stream and forwards it to
// every attached subscriber. Re-delivery of an already-seen Seq is
// suppressed, so at-least-once provider feeds are safe to publish as-is.
func (r *Relay) Publish(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.streamLocked(event.Provider)
	if event.Seq <= st.lastSeq {
		r.logger.Debug("suppressing duplicate event",
			"provider", event.Provider, "seq", event.Seq, "last_seq", st.lastSeq)
		return
	}
	st.lastSeq = event.Seq

	st.events = append(st.events, event)
	if len(st.events) > r.window {
		st.evictedThrough = st.events[0].Seq
		st.events = st.events[1:]
	}

	for _, sub := range st.subscribers {
		if event.Seq <= sub.lastDelivered {
			continue
		}
		select {
		case sub.ch <- event:
			sub.lastDelivered = event.Seq
		default:
			// Subscriber fell behind; drop it rather than block the feed.
			r.logger.Warn("dropping slow subscriber",
				"provider", event.Provider, "subscriber_id", sub.id,
				"last_delivered", sub.lastDelivered)
			delete(st.subscribers, sub.id)
			close(sub.ch)
		}
	}
}

// Recent returns up to limit retained events for a provider stream in
// ascending Seq order, filtered to one session when sessionID is set.
// Zero limit means the whole retained window.
func (r *Relay) Recent(provider, sessionID string, limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[provider]
	if !ok {
		return nil
	}
	var events []Event
	for _, event := range st.events {
		if sessionID == "" || event.SessionID == sessionID {
			events = append(events, event)
		}
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// LastSeq reports the highest sequence number published for a provider.
func (r *Relay) LastSeq(provider string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.streams[provider]; ok {
		return st.lastSeq
	}
	return 0
}

// Subscribe attaches a consumer to a provider stream, replaying every
// retained event with Seq > lastSeen before going live. A lastSeen that
// predates the retained window returns ErrGapDetected and the consumer
// must resynchronize out of band. lastSeen 0 is a first connect, not a
// resume point: the whole retained window is replayed with no gap check,
// however far the stream has advanced.
func (r *Relay) Subscribe(provider string, lastSeen int64) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.streamLocked(provider)
	if lastSeen > 0 && lastSeen < st.evictedThrough {
		return nil, fmt.Errorf("%w: last seen %d, retained from %d",
			ErrGapDetected, lastSeen, st.evictedThrough+1)
	}

	// Channel is sized so a full-window replay can never overflow it.
	sub := &subscriber{
		id:            uuid.New().String(),
		ch:            make(chan Event, r.window+r.slack),
		lastDelivered: lastSeen,
	}
	for _, event := range st.events {
		if event.Seq > lastSeen {
			sub.ch <- event
			sub.lastDelivered = event.Seq
		}
	}
	st.subscribers[sub.id] = sub

	r.logger.Debug("subscriber attached",
		"provider", provider, "subscriber_id", sub.id, "last_seen", lastSeen)

	return &Subscription{
		ID:       sub.id,
		C:        sub.ch,
		relay:    r,
		provider: provider,
	}, nil
}

func (r *Relay) unsubscribe(provider, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[provider]
	if !ok {
		return
	}
	if sub, ok := st.subscribers[id]; ok {
		delete(st.subscribers, id)
		close(sub.ch)
	}
}
