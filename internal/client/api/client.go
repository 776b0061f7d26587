// Package api is the single choke point for all SchoolBus backend traffic.
//
// Client.Request builds the request, attaches the bearer token read from the
// token store, reads the response body exactly once and either decodes the
// JSON payload or fails with an *APIError. The domain methods (Login, Buses,
// CreateBooking, ...) are thin wrappers that fix the path and method and
// normalise the response shape.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/metrics"
)

// DefaultBaseURL is used when Options.BaseURL is empty.
const DefaultBaseURL = "http://localhost:5000/api"

// TokenSource is the read-only view of the token store the client needs.
type TokenSource interface {
	Get(ctx context.Context) (token string, found bool, err error)
}

// UnauthorizedFunc is called when a user-initiated request is rejected with 401.
type UnauthorizedFunc func(ctx context.Context, err *APIError)

// Options configures a Client.
type Options struct {
	// BaseURL is prepended to every request path.
	BaseURL string
	// HTTPClient performs the requests. When nil a client with an
	// instrumented default transport and Timeout is created.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil. Zero means no bound.
	Timeout time.Duration
	// Logger receives one debug line per request.
	Logger *zap.Logger
	// OnUnauthorized is invoked on 401 responses unless the request opted out.
	OnUnauthorized UnauthorizedFunc
}

// Client talks to the SchoolBus REST backend.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	log            *zap.Logger
	onUnauthorized UnauthorizedFunc
}

// New creates a Client reading bearer tokens from tokens.
func New(tokens TokenSource, opts Options) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           opts.HTTPClient,
		tokens:         tokens,
		log:            opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: metrics.InstrumentTransport(nil),
			Timeout:   opts.Timeout,
		}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// SetUnauthorizedHandler replaces the 401 callback. It must be called before
// the client is shared between goroutines.
func (c *Client) SetUnauthorizedHandler(fn UnauthorizedFunc) {
	c.onUnauthorized = fn
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOptions describes one request. The zero value is a GET without body.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body is JSON-encoded unless it is a *MultipartBody or json.RawMessage.
	Body any
	// Header entries replace the defaults set by the client.
	Header http.Header
	// Query is appended to the path.
	Query url.Values
	// SkipUnauthorizedHook keeps a 401 from triggering OnUnauthorized.
	// Background work that is not initiated by the user sets it.
	SkipUnauthorizedHook bool
}

// Request performs one API call against path (relative to the base URL).
//
// On a 2xx response the body is decoded into out (it may be nil to discard
// the payload). On any other status the body is read as text and an
// *APIError is returned. Transport errors are returned as produced by
// http.Client.Do.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions, out any) error {
	req, err := c.newRequest(ctx, path, opts)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api request failed",
			zap.String("method", req.Method),
			zap.String("path", path),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		apiErr := &APIError{Status: resp.StatusCode, Body: string(text)}
		if resp.StatusCode == http.StatusUnauthorized && !opts.SkipUnauthorizedHook && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, apiErr)
		}
		return apiErr
	}

	if out == nil {
		var sink json.RawMessage
		out = &sink
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			// empty body, e.g. 204 No Content
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, opts RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	var (
		body        io.Reader
		contentType = "application/json"
	)
	switch b := opts.Body.(type) {
	case nil:
	case *MultipartBody:
		body = b.Reader()
		contentType = b.ContentType()
	case json.RawMessage:
		body = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	token, found, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read auth token: %w", err)
	}
	if found && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for k, vs := range opts.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Post is a convenience for a JSON POST with optional extra headers.
func (c *Client) Post(ctx context.Context, path string, body any, header http.Header, out any) error {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPost, Body: body, Header: header}, out)
}
