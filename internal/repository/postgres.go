package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxIface is the subset of *pgxpool.Pool used by PostgresStore
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

const (
	createKVTableQuery = `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	selectKVQuery = `SELECT value FROM kv_store WHERE key = $1`
	upsertKVQuery = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	deleteKVQuery = `DELETE FROM kv_store WHERE key = $1`
)

// PostgresStore keeps every collection as one row of a key-value table
type PostgresStore struct {
	db PgxIface
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(db PgxIface) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the kv_store table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createKVTableQuery); err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}
	return nil
}

// Get reads the value stored under key
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, selectKVQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.Exec(ctx, upsertKVQuery, key, value); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// SetMany upserts all entries in one transaction
func (s *PostgresStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	// fixed order keeps lock acquisition consistent across writers
	sort.Strings(keys)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, key := range keys {
		if _, err := tx.Exec(ctx, upsertKVQuery, key, entries[key]); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to set key %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, deleteKVQuery, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
