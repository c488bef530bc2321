package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"shakti-alert-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket message types
const (
	WSTypeAlert    = "alert"
	WSTypeResponse = "response"
	WSTypeError    = "error"
	WSTypeHello    = "hello"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string           `json:"type"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Alert     *models.Alert    `json:"alert,omitempty"`
	Response  *models.Response `json:"response,omitempty"`
	Role      models.Role      `json:"role,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// AlertSource is the subscription side of the alert service
type AlertSource interface {
	SubscribeAlerts(handler func(models.Alert)) Unsubscribe
	SubscribeResponses(handler func(models.Response)) Unsubscribe
}

// AlertLookup finds a stored alert by ID
type AlertLookup interface {
	AlertByID(ctx context.Context, alertID string) (*models.Alert, error)
}

type wsClient struct {
	conn    *websocket.Conn
	user    models.User
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub pushes alerts to connected volunteers and responses to the pilgrim
// who raised the acknowledged alert
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	lookup  AlertLookup
	unsubs  []Unsubscribe
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(lookup AlertLookup) *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
		lookup:  lookup,
	}
}

// Attach subscribes the hub to both alert service channels
func (h *WSHub) Attach(source AlertSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubs = append(h.unsubs,
		source.SubscribeAlerts(h.onAlert),
		source.SubscribeResponses(h.onResponse),
	)
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(user models.User, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.clients[user.ID]; exists {
		existing.conn.Close()
	}

	h.clients[user.ID] = &wsClient{conn: conn, user: user}

	log.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("WebSocket connection registered")
}

// Unregister removes conn if it is still the registered connection of userID
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[userID]
	if !exists || client.conn != conn {
		return
	}
	client.conn.Close()
	delete(h.clients, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}
	return h.send(client, message)
}

func (h *WSHub) send(client *wsClient, message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(client.user.ID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (h *WSHub) clientsWhere(match func(models.User) bool) []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []*wsClient
	for _, c := range h.clients {
		if match(c.user) {
			result = append(result, c)
		}
	}
	return result
}

func (h *WSHub) onAlert(alert models.Alert) {
	volunteers := h.clientsWhere(func(u models.User) bool {
		return u.Role == models.RoleVolunteer
	})

	message := WSMessage{
		Type:      WSTypeAlert,
		Timestamp: alert.Timestamp.UnixMilli(),
		Alert:     &alert,
	}
	for _, c := range volunteers {
		if err := h.send(c, message); err != nil {
			log.Error().
				Err(err).
				Str("user_id", c.user.ID).
				Str("alert_id", alert.ID).
				Msg("Failed to push alert")
		}
	}
}

func (h *WSHub) onResponse(response models.Response) {
	alert, err := h.lookup.AlertByID(context.Background(), response.AlertID)
	if err != nil {
		log.Error().Err(err).Str("alert_id", response.AlertID).Msg("Failed to find acknowledged alert")
		return
	}

	pilgrims := h.clientsWhere(func(u models.User) bool {
		return u.Phone == alert.PilgrimPhone
	})

	message := WSMessage{
		Type:      WSTypeResponse,
		Timestamp: response.Timestamp.UnixMilli(),
		Response:  &response,
	}
	for _, c := range pilgrims {
		if err := h.send(c, message); err != nil {
			log.Error().
				Err(err).
				Str("user_id", c.user.ID).
				Str("alert_id", response.AlertID).
				Msg("Failed to push response")
		}
	}
}

// Close detaches the hub from the alert service and drops every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	for _, c := range clients {
		c.conn.Close()
	}
}
