// Package relay turns a provider's inbound event feed into an ordered,
// resumable stream. Each provider stream retains a bounded window of
// recent events keyed by a monotonic sequence number.
//
// Guarantees, per subscriber and per provider stream:
//
//   - Delivered sequence numbers are strictly increasing; duplicates
//     re-delivered by the provider are suppressed at the relay boundary.
//   - A reconnecting subscriber that supplies its last-seen sequence
//     number gets every retained event it missed, then live forwarding.
//   - A resume point older than the retained window fails with
//     ErrGapDetected instead of silently skipping data.
//   - Publishing never blocks: a subscriber whose channel is full is
//     dropped (its channel closed) and must reconnect and resync.
package relay
