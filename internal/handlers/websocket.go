package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"shakti-alert-backend/internal/middleware"
	"shakti-alert-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub    *services.WSHub
	tokens middleware.TokenValidator
	users  middleware.UserFinder
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, tokens middleware.TokenValidator, users middleware.UserFinder) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		users:  users,
	}
}

// HandleWebSocket handles GET /ws?token=...
// Volunteers receive every new alert; pilgrims receive responses to their own alerts.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	user, err := middleware.UserFromToken(r.Context(), token, h.tokens, h.users)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(*user, conn)
	defer h.hub.Unregister(user.ID, conn)

	hello := services.WSMessage{
		Type:      services.WSTypeHello,
		Timestamp: time.Now().UnixMilli(),
		Role:      user.Role,
	}
	if err := h.hub.SendToUser(user.ID, hello); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send hello message")
		return
	}

	log.Info().Str("user_id", user.ID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", user.ID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to parse WebSocket message")
			h.sendError(user.ID, "Invalid message format")
			continue
		}
		// The channel is push-only; clients act through the HTTP API.
		h.sendError(user.ID, "Unknown message type")
	}
}

func (h *WebSocketHandler) sendError(userID, message string) {
	msg := services.WSMessage{
		Type:    services.WSTypeError,
		Message: message,
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send error message")
	}
}
