package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches an *APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches an *APIError with status 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches an *APIError with status 404.
	ErrNotFound = errors.New("not found")

	// ErrNetwork wraps transport failures of the multipart registration.
	ErrNetwork = errors.New("network error: please check your internet connection and make sure the server is running")

	// ErrUnexpectedShape is returned when a response matches none of the
	// shapes a resource is known to come in.
	ErrUnexpectedShape = errors.New("unexpected response shape")
	// ErrInvalidAuthResponse is returned when a login or registration
	// response carries no token.
	ErrInvalidAuthResponse = errors.New("invalid response format from server")
	// ErrNoRefreshToken is returned when the refresh endpoint answers 2xx without a token.
	ErrNoRefreshToken = errors.New("no token returned from refresh token endpoint")
)

// APIError is returned for every non-2xx response. Body is the raw response text.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API Error: %d", e.Status)
	}
	return fmt.Sprintf("API Error: %d - %s", e.Status, e.Body)
}

// Unwrap lets errors.Is match the status sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
