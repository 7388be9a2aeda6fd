package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const createIdentityTable = `
CREATE TABLE IF NOT EXISTS client_identity (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps the user in a key/value table, for shared kiosk or bot hosts
type PostgresStore struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgresStore opens a pool and makes sure the table exists
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createIdentityTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create identity table: %w", err)
	}
	return &PostgresStore{pool: pool, key: StorageKey}, nil
}

// Load reads the stored user
func (s *PostgresStore) Load(ctx context.Context) (*User, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM client_identity WHERE key = $1`, s.key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		log.Warn().Err(err).Str("key", s.key).Msg("ignoring unreadable identity row")
		return nil, ErrNotFound
	}
	return &user, nil
}

// Save upserts the user
func (s *PostgresStore) Save(ctx context.Context, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO client_identity (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.key, raw)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// Clear removes the stored user
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM client_identity WHERE key = $1`, s.key); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
