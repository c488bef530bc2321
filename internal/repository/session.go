package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shakti-alert-backend/internal/models"
)

// SessionRepository persists the current-session pointer
type SessionRepository struct {
	store Store
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(store Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Get returns the persisted session user, or nil if no session is stored
func (r *SessionRepository) Get(ctx context.Context) (*models.User, error) {
	data, err := r.store.Get(ctx, CurrentSessionKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &user, nil
}

// Set persists user as the current session
func (r *SessionRepository) Set(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.store.Set(ctx, CurrentSessionKey, data); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Clear removes the persisted session
func (r *SessionRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, CurrentSessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
