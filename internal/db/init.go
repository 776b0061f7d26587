// Package db opens PostgreSQL databases for the stub backend and the
// client's shared token store.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    avatar TEXT NOT NULL DEFAULT '',
    password_hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InitPostgres opens dsn, checks the connection and creates the users table.
func InitPostgres(dsn string) (*sql.DB, error) {
	return Open(dsn, usersSchema)
}

// Open connects to PostgreSQL at dsn, checks the connection and applies
// schema. The handle is closed on any failure.
func Open(dsn, schema string) (*sql.DB, error) {
	return open("postgres", dsn, schema)
}

func open(driver, dsn, schema string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
