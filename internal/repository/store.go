package repository

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrKeyNotFound is returned by a Store when a key has never been written
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotFound indicates a requested record is missing from its collection
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write would break a uniqueness constraint
	ErrConflict = errors.New("record conflict")
)

// Store maps string keys to serialized collections
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all entries or none of them
	SetMany(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores value under key
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

// SetMany stores every entry under a single lock
func (s *MemoryStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range entries {
		s.data[key] = append([]byte(nil), value...)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
