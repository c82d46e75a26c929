// Package server implements the CharacterForge HTTP API: generation,
// credits, checkout, payment webhooks, API key management, and image
// serving.
//
// identity.go implements the Authenticator molecule that resolves Bearer
// credentials into an identity. The credential type decides which credit
// pool the caller spends from: API keys bill the programmatic pool,
// session tokens the interactive pool.
package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"charforge/core"
	"charforge/credits"
	"charforge/db"
	"charforge/logging"
	"charforge/server/auth"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string

	// Pool is the balance this caller's paid operations draw from.
	Pool credits.Pool

	// APIKeyID is set when the caller authenticated with an API key.
	APIKeyID string
}

type contextKey int

const identityKey contextKey = 0

// identityFrom extracts the authenticated identity the auth middleware
// stored in the request context.
func identityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok
}

// withIdentity stores an identity in the context.
func withIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Authenticator resolves Bearer credentials against the store.
type Authenticator struct {
	store *db.Store
	log   *logging.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(store *db.Store, logger *logging.Logger) (*Authenticator, error) {
	if store == nil {
		return nil, fmt.Errorf("server: store cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Authenticator{store: store, log: logger.Named("auth")}, nil
}

// Authenticate resolves a Bearer token into an identity.
//
// Tokens with the API key prefix are looked up by their public ID and the
// secret is compared against the stored digest; all other tokens are
// treated as session tokens. Every failure is the same
// AuthenticationError so a caller cannot probe which part was wrong.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, &core.AuthenticationError{Message: "missing credentials"}
	}

	if auth.IsAPIKey(token) {
		return a.authenticateAPIKey(ctx, token)
	}
	return a.authenticateSession(ctx, token)
}

func (a *Authenticator) authenticateAPIKey(ctx context.Context, token string) (*Identity, error) {
	denied := &core.AuthenticationError{Message: "invalid API key"}

	id, secret, err := auth.ParseAPIKey(token)
	if err != nil {
		return nil, denied
	}
	key, err := a.store.GetAPIKey(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			a.log.Error("API key lookup failed", zap.Error(err))
		}
		return nil, denied
	}
	if key.RevokedAt != nil {
		return nil, denied
	}
	if err := auth.VerifyAPIKeySecret(key.SecretHash, secret); err != nil {
		return nil, denied
	}

	if err := a.store.TouchAPIKey(ctx, id); err != nil {
		a.log.Warn("failed to update key last-used timestamp", zap.Error(err))
	}

	return &Identity{
		UserID:   key.UserID,
		Pool:     credits.PoolAPI,
		APIKeyID: key.ID,
	}, nil
}

func (a *Authenticator) authenticateSession(ctx context.Context, token string) (*Identity, error) {
	session, err := a.store.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			a.log.Error("session lookup failed", zap.Error(err))
		}
		return nil, &core.AuthenticationError{Message: "invalid or expired session"}
	}
	return &Identity{
		UserID: session.UserID,
		Pool:   credits.PoolApp,
	}, nil
}
