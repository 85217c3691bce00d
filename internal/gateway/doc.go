// Package gateway wires configuration into running components: the
// SQLite store, tool registry with built-in packs, credential store,
// session manager, dispatcher, event relay, retrieval index, Telegram
// poller, and maintenance scheduler. The HTTP surface exposes command
// dispatch, a resumable SSE event stream, document ingestion, credential
// seeding, and session inspection.
package gateway
