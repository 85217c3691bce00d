// Package session holds per-conversation state for errand-gateway.
//
// Each session carries an append-only turn history, pending confirmations,
// and credential bindings, keyed by session id. State is persisted to the
// store and hydrated on first access, so restarts keep history intact.
//
// WithExclusiveAccess is the serialization point the dispatcher relies on:
// at most one caller per session id runs inside the scope at any instant,
// and the lock is released on every exit path including panics. Sessions
// are never destroyed automatically — eviction is a maintenance sweep
// driven by the configured TTL.
package session
