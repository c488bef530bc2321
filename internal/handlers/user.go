package handlers

import (
	"net/http"

	"shakti-alert-backend/internal/middleware"
	"shakti-alert-backend/internal/services"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	identity  *services.IdentityService
	validator *Validator
}

// NewUserHandler creates a new user handler
func NewUserHandler(identity *services.IdentityService, validator *Validator) *UserHandler {
	return &UserHandler{
		identity:  identity,
		validator: validator,
	}
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, middleware.GetUser(r.Context()))
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users := h.identity.AllUsers(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

// RegisterDeviceToken handles PUT /api/v1/users/me/device-token
func (h *UserHandler) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req DeviceTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.identity.RegisterDeviceToken(ctx, userID, req.Token); err != nil {
		respondServiceError(w, err, "register device token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
