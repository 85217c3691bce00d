// ABOUTME: Credential seeding from a completed OAuth authorization
// ABOUTME: Recovers the account email from the id_token when none is supplied

package creds

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/errandhq/errand-gateway/internal/store"
)

// Authorize seeds or replaces the credential for a (provider, account)
// pair from a freshly obtained token. When account is empty the email
// claim of the token's id_token is used instead. Any previous invalid
// marker is cleared.
func (s *Store) Authorize(ctx context.Context, provider, account string, tok *oauth2.Token, scopes []string) (string, error) {
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("authorization for %s carries no refresh token", provider)
	}

	if account == "" {
		email, err := emailFromIDToken(tok)
		if err != nil {
			return "", fmt.Errorf("no account given and %w", err)
		}
		account = email
	}

	cred := &store.Credential{
		Provider:     provider,
		Account:      account,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
	if err := s.db.ReplaceCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("persisting authorized credential: %w", err)
	}

	s.logger.Info("credential authorized",
		"provider", provider, "account", account, "scopes", scopes)
	return account, nil
}

// emailFromIDToken extracts the email claim from an OIDC id_token without
// verifying its signature. The token arrived over the provider's TLS token
// endpoint; it is used only to label the account locally.
func emailFromIDToken(tok *oauth2.Token) (string, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("token response carries no id_token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("parsing id_token: %w", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("id_token carries no email claim")
	}
	return email, nil
}
