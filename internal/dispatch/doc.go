// Package dispatch routes commands from the conversation surface to
// registered tools. Every invocation moves through a fixed state machine:
//
//	Received → Resolved → AuthorizedOrSkipped → Executing → Completed | Failed
//
// Received checks the idempotency cache: a completed invocation id replays
// its recorded result without touching the collaborator again, and an id
// that is still executing is rejected with ErrDuplicateInFlight. Completed
// results also persist to the invocation table, so replay survives a
// process restart.
//
// Resolved looks the tool up in the registry and validates the parameter
// bindings against its declared schema. AuthorizedOrSkipped acquires an
// access token for scoped tools from the session's bound account, and is a
// no-op for unscoped tools. Executing invokes the handler under a timeout,
// the descriptor's own when set, the dispatcher default otherwise.
//
// Both terminal states append a turn to the session's history. Failed
// turns carry one of the Kind* taxonomy values so later automation
// decisions can distinguish a revoked grant from a transient outage.
// Failures release the in-flight marker, so the same invocation id may be
// retried; only Completed results are replayed.
//
// All states after Resolved run inside the session's exclusive scope,
// which makes concurrent commands on one session serial-equivalent.
package dispatch
