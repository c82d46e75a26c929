// auth_handlers.go implements signup, login, logout, and API key
// management.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charforge/core"
	"charforge/credits"
	"charforge/db"
	"charforge/server/auth"
)

// sessionTTL bounds interactive sessions. Expired rows are swept in the
// background and rejected on lookup either way.
const sessionTTL = 30 * 24 * time.Hour

// maxAPIKeysPerUser caps active keys per account.
const maxAPIKeysPerUser = 10

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// handleSignup creates an account, grants the welcome credits, and opens a
// session.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		respondError(w, s.log, &core.ValidationError{
			Message: "email and a password of at least 8 characters are required",
		})
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	user := db.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrConflict) {
			respondJSON(w, http.StatusConflict, errorBody{Error: "account already exists"})
			return
		}
		respondError(w, s.log, err)
		return
	}

	if _, err := s.ledger.Grant(r.Context(), user.ID, credits.PoolApp, WelcomeCredits, "signup_"+user.ID); err != nil {
		s.log.Warn("welcome grant failed",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	token, err := s.openSession(r, user.ID)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	s.log.Info("account created", zap.String("user_id", user.ID))
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":  token,
		"userId": user.ID,
	})
}

// handleLogin verifies credentials and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}

	denied := &core.AuthenticationError{Message: "invalid email or password"}

	user, err := s.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, s.log, denied)
			return
		}
		respondError(w, s.log, err)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, body.Password); err != nil {
		respondError(w, s.log, denied)
		return
	}

	token, err := s.openSession(r, user.ID)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"userId": user.ID,
	})
}

// handleLogout deletes the presented session. Logging out with an API key
// is meaningless; keys are revoked through /api-keys instead.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if auth.IsAPIKey(token) {
		respondError(w, s.log, &core.ValidationError{
			Message: "API keys cannot be logged out, revoke the key instead",
		})
		return
	}

	if err := s.store.DeleteSession(r.Context(), token); err != nil && !errors.Is(err, db.ErrNotFound) {
		respondError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func (s *Server) openSession(r *http.Request, userID string) (string, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		return "", err
	}
	session := db.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		return "", err
	}
	return token, nil
}

// requireSession rejects API key callers. Key management and checkout must
// come from an interactive session so a leaked key cannot mint more keys.
func requireSession(identity *Identity) error {
	if identity.APIKeyID != "" {
		return &core.AuthenticationError{
			Message: "this endpoint requires an interactive session",
		}
	}
	return nil
}

type apiKeySummary struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	CreatedAt  string  `json:"createdAt"`
	LastUsedAt *string `json:"lastUsedAt"`
	Revoked    bool    `json:"revoked"`
}

func summarizeAPIKey(key db.APIKey) apiKeySummary {
	summary := apiKeySummary{
		ID:        key.ID,
		Label:     key.Label,
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
		Revoked:   key.RevokedAt != nil,
	}
	if key.LastUsedAt != nil {
		used := key.LastUsedAt.UTC().Format(time.RFC3339)
		summary.LastUsedAt = &used
	}
	return summary
}

// handleListAPIKeys lists the caller's keys, digests omitted.
func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}
	if err := requireSession(identity); err != nil {
		respondError(w, s.log, err)
		return
	}

	keys, err := s.store.ListAPIKeys(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	summaries := make([]apiKeySummary, 0, len(keys))
	for _, key := range keys {
		summaries = append(summaries, summarizeAPIKey(key))
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": summaries})
}

// handleMintAPIKey creates a key and returns the raw value exactly once.
func (s *Server) handleMintAPIKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}
	if err := requireSession(identity); err != nil {
		respondError(w, s.log, err)
		return
	}

	var body struct {
		Label string `json:"label"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			respondError(w, s.log, err)
			return
		}
	}
	label := strings.TrimSpace(body.Label)
	if label == "" {
		label = "default"
	}

	existing, err := s.store.ListAPIKeys(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	active := 0
	for _, key := range existing {
		if key.RevokedAt == nil {
			active++
		}
	}
	if active >= maxAPIKeysPerUser {
		respondError(w, s.log, &core.ValidationError{
			Message: "API key limit reached, revoke an unused key first",
		})
		return
	}

	minted, err := auth.MintAPIKey()
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	record := db.APIKey{
		ID:         minted.ID,
		UserID:     identity.UserID,
		SecretHash: minted.SecretHash,
		Label:      label,
	}
	if err := s.store.InsertAPIKey(r.Context(), record); err != nil {
		respondError(w, s.log, err)
		return
	}

	s.log.Info("api key minted",
		zap.String("user_id", identity.UserID),
		zap.String("key_id", minted.ID))
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":    minted.ID,
		"key":   minted.Raw,
		"label": label,
	})
}

// handleRevokeAPIKey revokes one of the caller's keys.
func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}
	if err := requireSession(identity); err != nil {
		respondError(w, s.log, err)
		return
	}

	id := r.PathValue("id")
	if err := s.store.RevokeAPIKey(r.Context(), identity.UserID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, errorBody{Error: "no such API key"})
			return
		}
		respondError(w, s.log, err)
		return
	}

	s.log.Info("api key revoked",
		zap.String("user_id", identity.UserID),
		zap.String("key_id", id))
	respondJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
