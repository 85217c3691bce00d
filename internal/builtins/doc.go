// Package builtins registers the standard tool surface into the tool
// registry at startup: Telegram messaging, Gmail sends, Google Sheets
// manipulation, retrieval-index search, and a small math pack. Packs are
// independent; a pack whose collaborator is not configured is skipped.
package builtins
