// handlers.go implements the generation, credits, payments, and
// introspection endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"charforge/charclient"
	"charforge/core"
	"charforge/credits"
	"charforge/db"
	"charforge/payments"
)

// maxRequestBody caps JSON request payloads. Character configs are tiny;
// anything larger is malformed or hostile.
const maxRequestBody = 64 * 1024

// maxWebhookBody caps Stripe webhook payloads, matching Stripe's own
// documented maximum event size.
const maxWebhookBody = 1 << 20

// historyLimit is the page size for the generation history endpoint.
const historyLimit = 50

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &core.ValidationError{Message: "malformed JSON body"}
	}
	return nil
}

// handleGenerate runs the full generation flow for an authenticated caller:
// validate the config, enforce the per-caller rate limit, then run the
// pipeline inside the credit guard so failed generations are refunded.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}

	var config charclient.CharacterConfig
	if err := decodeJSON(r, &config); err != nil {
		respondError(w, s.log, err)
		return
	}
	if err := s.validate.Struct(config); err != nil {
		respondError(w, s.log, &core.ValidationError{Message: "missing required fields"})
		return
	}
	if err := config.Validate(); err != nil {
		respondError(w, s.log, err)
		return
	}

	if !s.limiter.Allow(identity.UserID) {
		s.metrics.RateLimitRefusal()
		respondError(w, s.log, &core.RateLimitError{
			Message: "generation rate limit exceeded, slow down",
		})
		return
	}

	s.metrics.GenerationStarted()

	var imageName string
	err := s.guard.Run(r.Context(), identity.UserID, identity.Pool, func(ctx context.Context) error {
		result, genErr := s.generator.Generate(ctx, config)
		if genErr != nil {
			return genErr
		}

		name, saveErr := s.images.Save(result.ImageData)
		if saveErr != nil {
			return saveErr
		}
		imageName = name

		configJSON, _ := json.Marshal(config)
		record := db.GenerationRecord{
			UserID:      identity.UserID,
			ConfigJSON:  string(configJSON),
			ImageName:   name,
			Transparent: result.Transparent,
		}
		if histErr := s.store.InsertGeneration(ctx, record); histErr != nil {
			// History is advisory; the caller already has their image.
			s.log.Warn("failed to record generation history",
				zap.String("user_id", identity.UserID),
				zap.Error(histErr))
		}
		return nil
	})
	if err != nil {
		s.metrics.GenerationFinished(false)
		var insufficient *core.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.metrics.CreditRefusal()
		}
		respondError(w, s.log, err)
		return
	}

	s.metrics.GenerationFinished(true)
	respondJSON(w, http.StatusOK, map[string]any{
		"image":     s.images.URL(imageName),
		"thumbnail": s.images.URL(thumbnailName(imageName)),
	})
}

// handleCredits reports both pool balances for the authenticated user.
func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}

	app, err := s.ledger.Balance(r.Context(), identity.UserID, credits.PoolApp)
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	api, err := s.ledger.Balance(r.Context(), identity.UserID, credits.PoolAPI)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"appCredits": app,
		"apiCredits": api,
	})
}

// handleHistory lists the caller's most recent generations.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}

	records, err := s.store.ListGenerations(r.Context(), identity.UserID, historyLimit)
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	type historyEntry struct {
		Config      json.RawMessage `json:"config"`
		Image       string          `json:"image"`
		Transparent bool            `json:"transparent"`
		CreatedAt   string          `json:"createdAt"`
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			Config:      json.RawMessage(rec.ConfigJSON),
			Image:       s.images.URL(rec.ImageName),
			Transparent: rec.Transparent,
			CreatedAt:   rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// handleCheckout creates a Stripe checkout session for a credit purchase.
// Only interactive sessions can buy credits; the type field picks which
// pool the purchase lands in.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondError(w, s.log, &core.AuthenticationError{Message: "missing identity"})
		return
	}
	if err := requireSession(identity); err != nil {
		respondError(w, s.log, err)
		return
	}
	if s.checkout == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "payments are not configured"})
		return
	}

	var body struct {
		PackID string `json:"packId"`
		Amount int64  `json:"amount"`

		// Type selects the credited pool, "app" or "api"; empty follows
		// the caller's credential type.
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}

	pool := identity.Pool
	switch body.Type {
	case "":
	case "app":
		pool = credits.PoolApp
	case "api":
		pool = credits.PoolAPI
	default:
		respondError(w, s.log, &core.ValidationError{
			Field:   "type",
			Message: `must be "app" or "api"`,
		})
		return
	}

	url, err := s.checkout.CreateSession(r.Context(), identity.UserID, pool, payments.Purchase{
		PackID:  body.PackID,
		Credits: body.Amount,
	})
	if err != nil {
		respondError(w, s.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"url": url})
}

// handleStripeWebhook verifies and applies Stripe event deliveries. Always
// answers 200 for verified events, including replays, so Stripe stops
// redelivering.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "payments are not configured"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, s.log, &core.ValidationError{Message: "unreadable webhook payload"})
		return
	}

	credited, err := s.webhook.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	if credited > 0 {
		s.metrics.CreditsPurchased(credited)
	}

	respondJSON(w, http.StatusOK, map[string]any{"received": true})
}

// handleStatus reports runtime counters. Unauthenticated so uptime checks
// and dashboards can poll it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleVocabulary returns the allowed values for every attribute category
// so UI layers build pickers from the same source of truth the validator
// uses.
func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	categories := []string{
		"gender", "skinTone", "hairStyle", "hairColor",
		"clothing", "clothingColor", "eyeColor", "accessories",
	}
	out := make(map[string][]string, len(categories))
	for _, category := range categories {
		out[category] = charclient.Vocabulary(category)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleImage serves a stored image or thumbnail by name.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.images.ServeImage(w, r, r.PathValue("name")) {
		s.metrics.ImageServed()
	}
}
