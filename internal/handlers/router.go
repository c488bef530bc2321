package handlers

import (
	"net/http"

	"shakti-alert-backend/internal/middleware"
	"shakti-alert-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every HTTP and WebSocket route
func NewRouter(
	identity *services.IdentityService,
	tokens *services.TokenService,
	alerts *services.AlertService,
	hub *services.WSHub,
) http.Handler {
	validator := NewValidator()

	authHandler := NewAuthHandler(identity, tokens, validator)
	userHandler := NewUserHandler(identity, validator)
	alertHandler := NewAlertHandler(alerts, validator)
	wsHandler := NewWebSocketHandler(hub, tokens, identity)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/alerts", alertHandler.List)
		r.Get("/alerts/{alert_id}", alertHandler.Get)
		r.Get("/responses", alertHandler.Responses)

		// Anonymous broadcasts are allowed
		r.With(middleware.OptionalAuthMiddleware(tokens, identity)).
			Post("/alerts", alertHandler.Broadcast)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(tokens, identity))
			r.Get("/users/me", userHandler.Me)
			r.Get("/users", userHandler.List)
			r.Put("/users/me/device-token", userHandler.RegisterDeviceToken)
			r.Post("/alerts/{alert_id}/acknowledge", alertHandler.Acknowledge)
			r.Post("/alerts/{alert_id}/resolve", alertHandler.Resolve)
		})
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
