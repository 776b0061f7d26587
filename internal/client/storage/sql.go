package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/SchoolBus/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InitPostgres opens a PostgreSQL connection for SQLStore, checks it is
// reachable and creates the client_state table if needed.
func InitPostgres(dsn string) (*sql.DB, error) {
	return db.Open(dsn, schema)
}

// SQLStore keeps the token as one row of the client_state table.
// It suits shared kiosks and dispatch consoles that keep state in Postgres.
type SQLStore struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewSQLStore creates a SQLStore on top of an initialised database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Get implements TokenStore.
func (s *SQLStore) Get(ctx context.Context) (string, bool, error) {
	var token string
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT value FROM client_state WHERE key = $1`,
		TokenKey,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select token: %w", err)
	}
	return token, true, nil
}

// Set implements TokenStore. Concurrent writers race and the last one wins.
func (s *SQLStore) Set(ctx context.Context, token string) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO client_state (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		TokenKey, token,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// Delete implements TokenStore.
func (s *SQLStore) Delete(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM client_state WHERE key = $1`, TokenKey)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
