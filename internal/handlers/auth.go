package handlers

import (
	"net/http"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// AuthHandler handles registration, login and logout
type AuthHandler struct {
	identity  *services.IdentityService
	tokens    *services.TokenService
	validator *Validator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(identity *services.IdentityService, tokens *services.TokenService, validator *Validator) *AuthHandler {
	return &AuthHandler{
		identity:  identity,
		tokens:    tokens,
		validator: validator,
	}
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.identity.Register(r.Context(), req.toModel())
	if err != nil {
		respondServiceError(w, err, "register user")
		return
	}

	h.respondWithToken(w, user, http.StatusCreated)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.identity.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		log.Info().Err(err).Str("phone", req.Phone).Msg("Login rejected")
		respondServiceError(w, err, "log in")
		return
	}

	h.respondWithToken(w, user, http.StatusOK)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.identity.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user *models.User, statusCode int) {
	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate token")
		respondError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	respondJSON(w, statusCode, AuthResponse{User: user, Token: token})
}
