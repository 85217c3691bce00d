// Package telegram is the messaging provider. Client covers the two Bot
// API methods the gateway needs, sendMessage and getUpdates. Poller
// turns the getUpdates long-poll into relay events and session history,
// checkpointing the consumed update id so a restart resumes where it
// left off instead of replaying or skipping updates.
package telegram
