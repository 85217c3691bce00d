// ABOUTME: TTL and size-bounded cache of recent invocations for idempotent dispatch
// ABOUTME: Tracks in-flight markers and completed results keyed by invocation id

package dispatch

import (
	"container/list"
	"sync"
	"time"
)

// cacheState distinguishes an executing marker from a replayable result.
type cacheState int

const (
	stateInflight cacheState = iota
	stateCompleted
)

// cacheEntry stores one invocation's state with its eviction bookkeeping.
type cacheEntry struct {
	state     cacheState
	result    *Result
	timestamp time.Time
	element   *list.Element
}

// invocationCache is a thread-safe, TTL-based, size-limited cache of recent
// invocation ids. A doubly-linked list maintains insertion order for O(1)
// eviction of the oldest entry at capacity.
type invocationCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newInvocationCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func newInvocationCache(ttl time.Duration, maxSize int) *invocationCache {
	c := &invocationCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// begin atomically checks an invocation id and marks it in-flight when new.
// Returns (cached result, true) for a completed id, (nil, true) for an id
// still executing, and (nil, false) when the id is new and now marked.
func (c *invocationCache) begin(id string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return entry.result, true
	}

	// New (or expired): mark in-flight
	if ok {
		c.removeLocked(id, entry)
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	elem := c.order.PushBack(id)
	c.entries[id] = &cacheEntry{
		state:     stateInflight,
		timestamp: time.Now(),
		element:   elem,
	}
	return nil, false
}

// complete records a terminal result for an in-flight id so later retries
// replay it without re-executing.
func (c *invocationCache) complete(id string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		// Entry was evicted while executing; reinsert.
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
		entry = &cacheEntry{element: c.order.PushBack(id)}
		c.entries[id] = entry
	}
	entry.state = stateCompleted
	entry.result = result
	entry.timestamp = time.Now()
}

// release drops an in-flight marker so the id may be retried.
// Used for failures that are legitimate to re-attempt with the same id.
func (c *invocationCache) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok && entry.state == stateInflight {
		c.removeLocked(id, entry)
	}
}

// removeLocked deletes an entry. Must be called with mu held.
func (c *invocationCache) removeLocked(id string, entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, id)
}

// evictOldestLocked removes the oldest entry. Must be called with mu held.
func (c *invocationCache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *invocationCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *invocationCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.removeLocked(id, entry)
		}
	}
}

// close stops the background cleanup goroutine. Safe to call multiple times.
func (c *invocationCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
