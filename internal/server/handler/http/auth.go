// Package http provides the stub backend's HTTP handlers.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/middleware"
	"github.com/atinyakov/SchoolBus/internal/models"
	"github.com/atinyakov/SchoolBus/internal/repository"
	"github.com/atinyakov/SchoolBus/internal/service"
)

const maxUploadBytes = 10 << 20

// AuthService defines the authentication operations required by the HTTP handlers.
type AuthService interface {
	Register(ctx context.Context, p service.RegisterParams) (string, models.User, error)
	Login(ctx context.Context, email, password string) (string, models.User, error)
	User(ctx context.Context, id string) (models.User, error)
	Refresh(ctx context.Context, id string) (string, error)
}

// AuthHandler handles registration, login and token endpoints.
type AuthHandler struct {
	AuthService AuthService
	Validator   *Validator
	Log         *zap.Logger
}

// RegisterRequest is the registration form, as JSON or multipart fields.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=parent driver admin manager"`
	Phone    string `json:"phone"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login handles POST /users/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.internal(w, "login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Register handles POST /users/register. It accepts JSON or a multipart
// form with an optional "image" file.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var (
		req    RegisterRequest
		avatar string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		req = RegisterRequest{
			Name:     r.FormValue("name"),
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
			Role:     r.FormValue("role"),
			Phone:    r.FormValue("phone"),
		}
		if f, fh, err := r.FormFile("image"); err == nil {
			_ = f.Close()
			avatar = "/uploads/" + path.Base(fh.Filename)
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.register(w, r, req, avatar)
}

// RegisterSimple handles POST /users/register-simple (JSON only).
func (h *AuthHandler) RegisterSimple(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.register(w, r, req, "")
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, req RegisterRequest, avatar string) {
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := h.AuthService.Register(r.Context(), service.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		Phone:    req.Phone,
		Avatar:   avatar,
	})
	if errors.Is(err, repository.ErrUserExists) {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		h.internal(w, "registration failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// Me handles GET /users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.AuthService.User(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if errors.Is(err, repository.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "user no longer exists")
		return
	}
	if err != nil {
		h.internal(w, "load user failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// RefreshToken handles POST /users/refresh-token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.AuthService.Refresh(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if errors.Is(err, repository.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "user no longer exists")
		return
	}
	if err != nil {
		h.internal(w, "refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) internal(w http.ResponseWriter, msg string, err error) {
	h.Log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
