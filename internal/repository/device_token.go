package repository

import (
	"context"

	"shakti-alert-backend/internal/models"
)

// DeviceTokenRepository handles persistence of push device tokens
type DeviceTokenRepository struct {
	tokens *collection[models.DeviceToken]
}

// NewDeviceTokenRepository creates a new device token repository
func NewDeviceTokenRepository(store Store) *DeviceTokenRepository {
	return &DeviceTokenRepository{tokens: newCollection[models.DeviceToken](store, DeviceTokensKey)}
}

// List returns every stored device token
func (r *DeviceTokenRepository) List(ctx context.Context) ([]models.DeviceToken, error) {
	return r.tokens.list(ctx)
}

// Upsert stores token as the single device token of its user
func (r *DeviceTokenRepository) Upsert(ctx context.Context, token models.DeviceToken) error {
	return r.tokens.update(ctx, func(tokens []models.DeviceToken) ([]models.DeviceToken, error) {
		for i := range tokens {
			if tokens[i].UserID == token.UserID {
				tokens[i] = token
				return tokens, nil
			}
		}
		return append(tokens, token), nil
	})
}
