package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// TokenValidator resolves a bearer token to a user ID
type TokenValidator interface {
	Validate(token string) (string, error)
}

// UserFinder loads the user a token was issued for
type UserFinder interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
}

const (
	msgMissingHeader = "Authorization header required"
	msgBadHeader     = "Invalid authorization header format"
	msgBadToken      = "Invalid token"
)

// ErrInvalidToken is returned for any token that does not resolve to a user
var ErrInvalidToken = errors.New("invalid token")

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(tokens TokenValidator, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, msg := authenticate(r, tokens, users)
			if user == nil {
				respondError(w, msg, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(services.WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuthMiddleware attaches the user when a valid token is presented
// and lets anonymous requests through. A malformed or invalid token is still rejected.
func OptionalAuthMiddleware(tokens TokenValidator, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r.WithContext(services.WithAnonymous(r.Context())))
				return
			}
			user, msg := authenticate(r, tokens, users)
			if user == nil {
				respondError(w, msg, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(services.WithUser(r.Context(), user)))
		})
	}
}

func authenticate(r *http.Request, tokens TokenValidator, users UserFinder) (*models.User, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, msgMissingHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, msgBadHeader
	}

	user, err := UserFromToken(r.Context(), parts[1], tokens, users)
	if err != nil {
		return nil, msgBadToken
	}
	return user, ""
}

// UserFromToken validates token and loads its user
func UserFromToken(ctx context.Context, token string, tokens TokenValidator, users UserFinder) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	userID, err := tokens.Validate(token)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected token")
		return nil, ErrInvalidToken
	}

	user, err := users.UserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, services.ErrUnknownUser) {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to load token user")
		}
		return nil, ErrInvalidToken
	}
	return user, nil
}

// GetUser extracts the authenticated user from context
func GetUser(ctx context.Context) *models.User {
	return services.UserFromContext(ctx)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	user := GetUser(ctx)
	if user == nil {
		return ""
	}
	return user.ID
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
