// Package service provides the stub backend's business logic, delegating
// persistence to repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/SchoolBus/internal/models"
	"github.com/atinyakov/SchoolBus/internal/repository"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// UserRepository defines the persistence operations required by AuthService.
type UserRepository interface {
	// CreateUser stores a new account. It returns repository.ErrUserExists
	// when the email is taken.
	CreateUser(ctx context.Context, u repository.UserRecord) error
	// UserByEmail returns repository.ErrUserNotFound when no account matches.
	UserByEmail(ctx context.Context, email string) (*repository.UserRecord, error)
	// UserByID returns repository.ErrUserNotFound when no account matches.
	UserByID(ctx context.Context, id string) (*repository.UserRecord, error)
}

// Claims is the JWT payload issued by AuthService.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService registers accounts and issues HS256 tokens.
type AuthService struct {
	repo   UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService constructs an AuthService. A non-positive ttl means DefaultTokenTTL.
func NewAuthService(repo UserRepository, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{repo: repo, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// RegisterParams is a validated registration form.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	Avatar   string
}

// Register creates the account and signs it in.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (string, models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", models.User{}, fmt.Errorf("hash password: %w", err)
	}
	if p.Role == "" {
		p.Role = models.RoleParent
	}

	rec := repository.UserRecord{
		ID:           uuid.NewString(),
		Email:        p.Email,
		Name:         p.Name,
		Role:         string(p.Role),
		Phone:        p.Phone,
		Avatar:       p.Avatar,
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, rec); err != nil {
		return "", models.User{}, err
	}

	user := toUser(&rec)
	token, err := s.issue(user)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// Login checks the password and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, models.User, error) {
	rec, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.User{}, err
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return "", models.User{}, ErrInvalidCredentials
	}

	user := toUser(rec)
	token, err := s.issue(user)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// User returns the profile of id.
func (s *AuthService) User(ctx context.Context, id string) (models.User, error) {
	rec, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	return toUser(rec), nil
}

// Refresh issues a new token for an existing account.
func (s *AuthService) Refresh(ctx context.Context, id string) (string, error) {
	user, err := s.User(ctx, id)
	if err != nil {
		return "", err
	}
	return s.issue(user)
}

// Verify parses token and returns its claims.
func (s *AuthService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issue(u models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func toUser(rec *repository.UserRecord) models.User {
	return models.User{
		ID:     rec.ID,
		Email:  rec.Email,
		Name:   rec.Name,
		Role:   models.Role(rec.Role),
		Phone:  rec.Phone,
		Avatar: rec.Avatar,
	}
}

// VerifyBearer adapts Verify for the bearer middleware.
func (s *AuthService) VerifyBearer(token string) (string, string, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Role, nil
}
