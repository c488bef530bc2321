package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shakti-alert-backend/internal/models"
)

// UserRepository handles persistence of users and their credentials
type UserRepository struct {
	store Store
	users *collection[models.User]
}

// NewUserRepository creates a new user repository
func NewUserRepository(store Store) *UserRepository {
	return &UserRepository{
		store: store,
		users: newCollection[models.User](store, UsersKey),
	}
}

// List returns every stored user in registration order
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	return r.users.list(ctx)
}

// GetByPhone retrieves a user by phone
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	users, err := r.users.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Phone == phone {
			user := u.Clone()
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with phone %s: %w", phone, ErrNotFound)
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	users, err := r.users.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			user := u.Clone()
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

// CreateWithCredential appends user and stores its credential in one atomic write.
// ErrConflict is returned, with nothing written, if the phone is already taken.
func (r *UserRepository) CreateWithCredential(ctx context.Context, user *models.User, cred models.Credential) error {
	credData, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	users, err := r.users.load(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Phone == user.Phone {
			return fmt.Errorf("phone %s: %w", user.Phone, ErrConflict)
		}
	}

	usersData, err := r.users.encode(append(users, user.Clone()))
	if err != nil {
		return err
	}

	err = r.store.SetMany(ctx, map[string][]byte{
		UsersKey:                  usersData,
		CredentialKey(cred.Phone): credData,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update replaces the stored user with the same ID
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return r.users.update(ctx, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID == user.ID {
				users[i] = user.Clone()
				return users, nil
			}
		}
		return nil, fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	})
}

// SeedIfEmpty stores users and their credentials only when no user exists yet.
// It reports whether anything was written.
func (r *UserRepository) SeedIfEmpty(ctx context.Context, users []models.User, creds []models.Credential) (bool, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	existing, err := r.users.load(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	usersData, err := r.users.encode(users)
	if err != nil {
		return false, err
	}
	entries := map[string][]byte{UsersKey: usersData}
	for _, cred := range creds {
		data, err := json.Marshal(cred)
		if err != nil {
			return false, fmt.Errorf("failed to encode credential: %w", err)
		}
		entries[CredentialKey(cred.Phone)] = data
	}
	if err := r.store.SetMany(ctx, entries); err != nil {
		return false, fmt.Errorf("failed to seed users: %w", err)
	}
	return true, nil
}

// GetCredential retrieves the credential for phone
func (r *UserRepository) GetCredential(ctx context.Context, phone string) (*models.Credential, error) {
	data, err := r.store.Get(ctx, CredentialKey(phone))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("credential for %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return &cred, nil
}
