package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys of the persisted collections
const (
	UsersKey          = "shakti_users"
	CurrentSessionKey = "shakti_current_user"
	AlertsKey         = "emergency_alerts"
	ResponsesKey      = "volunteer_responses"
	DeviceTokensKey   = "device_tokens"
	credentialPrefix  = "password_"
)

// CredentialKey returns the key holding the credential for phone
func CredentialKey(phone string) string {
	return credentialPrefix + phone
}

// collection is one JSON-encoded ordered sequence stored under a single key.
// mu serializes read-modify-write cycles on that key within the process.
type collection[T any] struct {
	store Store
	key   string
	mu    sync.Mutex
}

func newCollection[T any](store Store, key string) *collection[T] {
	return &collection[T]{store: store, key: key}
}

// load returns the stored records, or an empty slice if the key was never written
func (c *collection[T]) load(ctx context.Context) ([]T, error) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", c.key, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", c.key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *collection[T]) encode(items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", c.key, err)
	}
	return data, nil
}

func (c *collection[T]) save(ctx context.Context, items []T) error {
	data, err := c.encode(items)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.key, err)
	}
	return nil
}

// list reads the collection without taking the write lock
func (c *collection[T]) list(ctx context.Context) ([]T, error) {
	return c.load(ctx)
}

// update runs fn over the current records and writes the result as one unit.
// Returning a nil slice from fn skips the write.
func (c *collection[T]) update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(items)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	return c.save(ctx, updated)
}
