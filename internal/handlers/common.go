package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"shakti-alert-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends body as JSON with statusCode
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondServiceError maps a service error to its HTTP status.
// Storage and unexpected errors are logged and hidden from the client.
func respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrDuplicatePhone):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrUnknownPhone), errors.Is(err, services.ErrBadCredential):
		respondError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrUnknownAlert), errors.Is(err, services.ErrUnknownUser):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidAlertType), errors.Is(err, services.ErrPasswordTooLong):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("Failed to " + action)
		respondError(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
