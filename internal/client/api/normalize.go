package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atinyakov/SchoolBus/internal/models"
)

var jsonNull = []byte("null")

func isArray(b []byte) bool  { return len(b) > 0 && b[0] == '[' }
func isObject(b []byte) bool { return len(b) > 0 && b[0] == '{' }
func isEmpty(b []byte) bool  { return len(b) == 0 || bytes.Equal(b, jsonNull) }

// decodeList extracts a list of T from the response shapes the backend uses:
// a bare array, {"data": [...]}, {"data": {"<key>": [...]}} or {"<key>": [...]}.
// An empty or null payload yields an empty list.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if isEmpty(raw) {
		return []T{}, nil
	}
	if isArray(raw) {
		return unmarshalList[T](raw)
	}
	if !isObject(raw) {
		return nil, shapeError("list", keys)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if data, ok := top["data"]; ok {
		data = bytes.TrimSpace(data)
		switch {
		case isEmpty(data):
			return []T{}, nil
		case isArray(data):
			return unmarshalList[T](data)
		case isObject(data):
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(data, &inner); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			if v, ok := pick(inner, keys); ok {
				return unmarshalList[T](v)
			}
		}
	}
	if v, ok := pick(top, keys); ok {
		return unmarshalList[T](v)
	}
	return nil, shapeError("list", keys)
}

// decodeOne extracts a single record from {"data": {"<key>": {...}}},
// {"<key>": {...}}, {"data": {...}} or a bare object.
func decodeOne[T any](raw json.RawMessage, key string) (*T, error) {
	raw = bytes.TrimSpace(raw)
	if !isObject(raw) {
		return nil, shapeError("record", []string{key})
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	target := raw
	if data, ok := top["data"]; ok && isObject(bytes.TrimSpace(data)) {
		target = data
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if v, ok := inner[key]; ok && isObject(bytes.TrimSpace(v)) {
			target = v
		}
	} else if v, ok := top[key]; ok && isObject(bytes.TrimSpace(v)) {
		target = v
	}

	out := new(T)
	if err := json.Unmarshal(target, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// AuthResult is the outcome of a login or registration.
type AuthResult struct {
	Token string
	User  models.User
}

type authPayload struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// decodeAuth accepts {"data": {"token", "user"}} or {"token", "user"}.
func decodeAuth(raw json.RawMessage) (*AuthResult, error) {
	var env struct {
		authPayload
		Data *authPayload `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthResponse, err)
	}

	p := env.authPayload
	if env.Data != nil && env.Data.Token != "" {
		p = *env.Data
	}
	if p.Token == "" {
		return nil, ErrInvalidAuthResponse
	}

	res := &AuthResult{Token: p.Token}
	if u := bytes.TrimSpace(p.User); !isEmpty(u) {
		if err := json.Unmarshal(u, &res.User); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
	}
	return res, nil
}

// decodeRefresh accepts {"token"} or {"data": {"token"}}.
func decodeRefresh(raw json.RawMessage) (string, error) {
	var env struct {
		Token string `json:"token"`
		Data  *struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoRefreshToken, err)
	}
	if env.Token != "" {
		return env.Token, nil
	}
	if env.Data != nil && env.Data.Token != "" {
		return env.Data.Token, nil
	}
	return "", ErrNoRefreshToken
}

func unmarshalList[T any](b json.RawMessage) ([]T, error) {
	if isEmpty(bytes.TrimSpace(b)) {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func pick(m map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			v = bytes.TrimSpace(v)
			if isArray(v) || isEmpty(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func shapeError(kind string, keys []string) error {
	return fmt.Errorf("%w: expected %s of %s", ErrUnexpectedShape, kind, strings.Join(keys, "/"))
}
