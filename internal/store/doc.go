// Package store provides SQLite persistence for errand-gateway.
//
// One SQLiteStore instance backs every stateful component:
//
//   - credentials: OAuth token pairs, replaced atomically on refresh
//   - sessions/turns: append-only conversation history
//   - invocations: durable idempotency records for the dispatcher
//   - chunks: embedded document chunks for the retrieval index
//   - relay_checkpoints: last delivered sequence per provider stream
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with WAL mode.
// The schema is created on open; all timestamps are stored as RFC 3339
// UTC strings.
package store
