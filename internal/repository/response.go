package repository

import (
	"context"

	"shakti-alert-backend/internal/models"
)

// ResponseRepository handles persistence of volunteer responses, newest first
type ResponseRepository struct {
	responses *collection[models.Response]
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(store Store) *ResponseRepository {
	return &ResponseRepository{responses: newCollection[models.Response](store, ResponsesKey)}
}

// List returns all responses in stored order
func (r *ResponseRepository) List(ctx context.Context) ([]models.Response, error) {
	return r.responses.list(ctx)
}
