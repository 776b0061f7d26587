// Package repository provides persistence for the stub backend.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/lib/pq"
)

var (
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
)

// UserRecord is a stored account.
type UserRecord struct {
	ID           string
	Email        string
	Name         string
	Role         string
	Phone        string
	Avatar       string
	PasswordHash []byte
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryUserRepository keeps accounts in process memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]UserRecord
	byEmail map[string]string
}

// NewMemoryUserRepository returns an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

// CreateUser stores u. The email must not be registered yet.
func (r *MemoryUserRepository) CreateUser(_ context.Context, u UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := normEmail(u.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrUserExists
	}
	u.Email = email
	r.byID[u.ID] = u
	r.byEmail[email] = u.ID
	return nil
}

// UserByEmail looks an account up by its login address.
func (r *MemoryUserRepository) UserByEmail(_ context.Context, email string) (*UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.byID[id]
	return &u, nil
}

// UserByID looks an account up by id.
func (r *MemoryUserRepository) UserByID(_ context.Context, id string) (*UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// PostgresUserRepository stores accounts in the users table.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a repository on db.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// CreateUser inserts u. A duplicate email is reported as ErrUserExists.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, u UserRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, phone, avatar, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, normEmail(u.Email), u.Name, u.Role, u.Phone, u.Avatar, u.PasswordHash,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

const userColumns = `id, email, name, role, phone, avatar, password_hash`

// UserByEmail looks an account up by its login address.
func (r *PostgresUserRepository) UserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, normEmail(email)))
}

// UserByID looks an account up by id.
func (r *PostgresUserRepository) UserByID(ctx context.Context, id string) (*UserRecord, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresUserRepository) scanOne(row *sql.Row) (*UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Phone, &u.Avatar, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
