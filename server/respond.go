// respond.go maps results and taxonomy errors onto HTTP responses.
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"charforge/core"
	"charforge/logging"
)

// errorBody is the failure payload of every endpoint.
type errorBody struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a taxonomy error as {status, {"error": message}}.
// Errors outside the taxonomy become opaque 500s so internals never leak.
func respondError(w http.ResponseWriter, log *logging.Logger, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		message = "internal server error"
	}
	respondJSON(w, status, errorBody{Error: message})
}

// statusForError maps error kinds to HTTP status codes. The default arm
// catches both unknown kinds and non-taxonomy errors.
func statusForError(err error) int {
	switch core.KindOf(err) {
	case core.KindAuthentication:
		return http.StatusUnauthorized
	case core.KindInsufficientCredits:
		return http.StatusPaymentRequired
	case core.KindRateLimit:
		return http.StatusTooManyRequests
	case core.KindValidation, core.KindConfigValidation, core.KindPayment:
		return http.StatusBadRequest
	case core.KindNetwork, core.KindAPI, core.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
