// Package creds manages OAuth2 credential lifecycles for errand-gateway.
//
// # Refresh on demand
//
// Get returns the cached access token unless its expiry falls within the
// configured safety margin, in which case the refresh token is exchanged
// at the provider's token endpoint first. Concurrent Get calls that both
// observe an expiring token share exactly one in-flight refresh per
// (provider, account) pair; later callers wait on the first caller's
// result instead of issuing duplicates.
//
// # Error classification
//
// A rejected refresh token ("invalid_grant") is terminal: the credential
// is marked invalid and every call returns ErrInvalidGrant until Authorize
// replaces it. Anything else is ErrTransient and retried with capped
// exponential backoff up to the configured attempt bound.
//
// # Durability
//
// A refreshed token pair is written to SQLite before the refresh commits.
// A crash between exchange and persistence is safe: the old refresh token
// remains valid until the provider invalidates it, so re-attempting the
// refresh after restart always works.
package creds
