package handlers

import (
	"net/http"

	"shakti-alert-backend/internal/middleware"
	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// AlertHandler handles alert-related HTTP requests
type AlertHandler struct {
	alerts    *services.AlertService
	validator *Validator
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *services.AlertService, validator *Validator) *AlertHandler {
	return &AlertHandler{
		alerts:    alerts,
		validator: validator,
	}
}

// BroadcastResponse is returned when an alert is raised
type BroadcastResponse struct {
	AlertID string `json:"alert_id"`
}

// Broadcast handles POST /api/v1/alerts
func (h *AlertHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	alertID, err := h.alerts.Broadcast(r.Context(), req.Type, req.Message)
	if err != nil {
		respondServiceError(w, err, "broadcast alert")
		return
	}

	respondJSON(w, http.StatusCreated, BroadcastResponse{AlertID: alertID})
}

// List handles GET /api/v1/alerts with an optional status filter
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.AlertStatus(r.URL.Query().Get("status"))

	var alerts []models.Alert
	switch status {
	case "":
		alerts = h.alerts.AllAlerts(r.Context())
	case models.AlertStatusActive:
		alerts = h.alerts.ActiveAlerts(r.Context())
	case models.AlertStatusAcknowledged, models.AlertStatusResolved:
		for _, a := range h.alerts.AllAlerts(r.Context()) {
			if a.Status == status {
				alerts = append(alerts, a)
			}
		}
	default:
		respondError(w, "status must be one of: active, acknowledged, resolved", http.StatusBadRequest)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// Get handles GET /api/v1/alerts/{alert_id}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.AlertByID(r.Context(), chi.URLParam(r, "alert_id"))
	if err != nil {
		respondServiceError(w, err, "get alert")
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// Acknowledge handles POST /api/v1/alerts/{alert_id}/acknowledge.
// The responder is the authenticated volunteer.
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)
	if user.Role != models.RoleVolunteer {
		respondError(w, "Only volunteers can acknowledge alerts", http.StatusForbidden)
		return
	}

	alertID := chi.URLParam(r, "alert_id")
	if err := h.alerts.Acknowledge(ctx, alertID, user.Name, user.Phone); err != nil {
		respondServiceError(w, err, "acknowledge alert")
		return
	}

	h.respondAlert(w, r, alertID)
}

// Resolve handles POST /api/v1/alerts/{alert_id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alert_id")
	if err := h.alerts.Resolve(r.Context(), alertID); err != nil {
		respondServiceError(w, err, "resolve alert")
		return
	}

	h.respondAlert(w, r, alertID)
}

func (h *AlertHandler) respondAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	alert, err := h.alerts.AlertByID(r.Context(), alertID)
	if err != nil {
		respondServiceError(w, err, "get alert")
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// Responses handles GET /api/v1/responses
func (h *AlertHandler) Responses(w http.ResponseWriter, r *http.Request) {
	responses := h.alerts.AllResponses(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"responses": responses,
		"total":     len(responses),
	})
}
