package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/atinyakov/SchoolBus/internal/models"
)

const (
	defaultImageName = "profile.jpg"
	defaultImageType = "image/jpeg"
)

// ImageFile is a profile picture attached to a registration.
type ImageFile struct {
	// URI locates the image. It must be non-empty for the image to be sent.
	URI string
	// Name is the uploaded filename, profile.jpg when empty.
	Name string
	// Type is the part content type, image/jpeg when empty.
	Type string
	// Content supplies the bytes. When nil the local file at URI is read.
	Content io.Reader
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	// Extra carries any additional form fields the backend accepts.
	Extra map[string]string
	Image *ImageFile
}

func (in RegisterInput) hasImage() bool {
	return in.Image != nil && in.Image.URI != ""
}

// fields returns the non-empty text fields in a stable order.
func (in RegisterInput) fields() [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("name", in.Name)
	add("email", in.Email)
	add("password", in.Password)
	add("role", string(in.Role))
	add("phone", in.Phone)

	keys := make([]string, 0, len(in.Extra))
	for k := range in.Extra {
		if k != "image" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, in.Extra[k])
	}
	return out
}

// MarshalJSON flattens Extra into the top-level object and omits the image.
func (in RegisterInput) MarshalJSON() ([]byte, error) {
	m := make(map[string]string)
	for _, kv := range in.fields() {
		m[kv[0]] = kv[1]
	}
	return json.Marshal(m)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var raw json.RawMessage
	err := c.Request(ctx, "/users/login", RequestOptions{
		Method: http.MethodPost,
		Body:   credentials{Email: email, Password: password},
		// a rejected login is not an expired session
		SkipUnauthorizedHook: true,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeAuth(raw)
}

// RegisterSimple registers without a profile image.
func (c *Client) RegisterSimple(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	var raw json.RawMessage
	err := c.Request(ctx, "/users/register-simple", RequestOptions{
		Method:               http.MethodPost,
		Body:                 in,
		SkipUnauthorizedHook: true,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeAuth(raw)
}

// Register posts the form to /users/register. With an image it is sent as
// multipart/form-data, otherwise as JSON. Transport failures of the
// multipart upload are reported as ErrNetwork.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	opts := RequestOptions{Method: http.MethodPost, Body: in, SkipUnauthorizedHook: true}

	multipartUpload := in.hasImage()
	if multipartUpload {
		body, err := buildRegisterForm(in)
		if err != nil {
			return nil, err
		}
		opts.Body = body
	}

	var raw json.RawMessage
	if err := c.Request(ctx, "/users/register", opts, &raw); err != nil {
		var urlErr *url.Error
		if multipartUpload && errors.As(err, &urlErr) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return nil, err
	}
	return decodeAuth(raw)
}

func buildRegisterForm(in RegisterInput) (*MultipartBody, error) {
	body := NewMultipartBody()
	for _, kv := range in.fields() {
		if err := body.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}

	img := in.Image
	name := img.Name
	if name == "" {
		name = defaultImageName
	}
	typ := img.Type
	if typ == "" {
		typ = defaultImageType
	}

	content := img.Content
	if content == nil {
		f, err := os.Open(strings.TrimPrefix(img.URI, "file://"))
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		defer f.Close()
		content = f
	}

	if err := body.WriteFile("image", name, typ, content); err != nil {
		return nil, err
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	return body, nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var raw json.RawMessage
	if err := c.Request(ctx, "/users/me", RequestOptions{}, &raw); err != nil {
		return nil, err
	}
	return decodeOne[models.User](raw, "user")
}

// RefreshToken asks the backend for a fresh token. It does not store it and
// never triggers the unauthorized hook.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var raw json.RawMessage
	err := c.Request(ctx, "/users/refresh-token", RequestOptions{
		Method:               http.MethodPost,
		SkipUnauthorizedHook: true,
	}, &raw)
	if err != nil {
		return "", err
	}
	return decodeRefresh(raw)
}
