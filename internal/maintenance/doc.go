// Package maintenance schedules the gateway's background sweeps with
// cron expressions from configuration: evicting idle sessions (and
// pruning aged invocation records with them), refreshing credentials
// before they expire so interactive commands rarely pay the refresh
// round-trip, and rebuilding the retrieval index. Job failures are
// logged and the next run proceeds normally.
package maintenance
