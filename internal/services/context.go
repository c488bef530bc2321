package services

import (
	"context"

	"shakti-alert-backend/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// WithUser returns a context carrying user as the acting identity
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithAnonymous marks ctx as acting for nobody. The process session is not
// consulted for such a context.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, userKey, (*models.User)(nil))
}

// UserFromContext extracts the acting identity, if any
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// actorFromContext reports the acting identity and whether ctx carries one
// at all, anonymous included
func actorFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}
