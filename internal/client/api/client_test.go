package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) Get(context.Context) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	return s.token, s.token != "", nil
}

// onceBody fails the test when the body is read after being closed or consumed.
type onceBody struct {
	t      *testing.T
	r      io.Reader
	closed bool
	eof    bool
}

func (b *onceBody) Read(p []byte) (int, error) {
	if b.closed {
		b.t.Error("body read after close")
		return 0, io.ErrClosedPipe
	}
	if b.eof {
		b.t.Error("body read again after EOF")
	}
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.eof = true
	}
	return n, err
}

func (b *onceBody) Close() error {
	b.closed = true
	return nil
}

func respond(t *testing.T, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       &onceBody{t: t, r: strings.NewReader(body)},
	}
}

func newTestClient(token string, rt roundTripperFunc) *Client {
	return New(&stubTokens{token: token}, Options{
		BaseURL:    "http://api.test/api",
		HTTPClient: &http.Client{Transport: rt},
	})
}

func TestRequest_AuthorizationHeader(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  []string
	}{
		{name: "token stored", token: "abc", want: []string{"Bearer abc"}},
		{name: "no token", token: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.token, func(r *http.Request) (*http.Response, error) {
				assert.Equal(t, tt.want, r.Header.Values("Authorization"))
				return respond(t, http.StatusOK, `{}`), nil
			})
			require.NoError(t, c.Request(context.Background(), "/users/me", RequestOptions{}, nil))
		})
	}
}

func TestRequest_BuildsURLAndHeaders(t *testing.T) {
	c := newTestClient("abc", func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "http://api.test/api/bookings/parent?date=2024-01-02&status=pending", r.URL.String())
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v", body["k"])
		return respond(t, http.StatusCreated, `{"ok":true}`), nil
	})

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Request(context.Background(), "/bookings/parent", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"k": "v"},
		Header: http.Header{"X-Extra": {"yes"}},
		Query:  url.Values{"status": {"pending"}, "date": {"2024-01-02"}},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestRequest_HeaderOverridesWin(t *testing.T) {
	c := newTestClient("abc", func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, []string{"Bearer other"}, r.Header.Values("Authorization"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		return respond(t, http.StatusOK, `{}`), nil
	})
	err := c.Request(context.Background(), "/x", RequestOptions{Header: http.Header{
		"Authorization": {"Bearer other"},
		"Content-Type":  {"text/plain"},
	}}, nil)
	require.NoError(t, err)
}

func TestRequest_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		sentinel error
	}{
		{name: "unauthorized", status: 401, body: "Invalid credentials", wantMsg: "API Error: 401 - Invalid credentials", sentinel: ErrUnauthorized},
		{name: "forbidden", status: 403, body: "nope", wantMsg: "API Error: 403 - nope", sentinel: ErrForbidden},
		{name: "not found", status: 404, body: `{"message":"missing"}`, wantMsg: `API Error: 404 - {"message":"missing"}`, sentinel: ErrNotFound},
		{name: "server error empty body", status: 500, body: "", wantMsg: "API Error: 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient("", func(r *http.Request) (*http.Response, error) {
				return respond(t, tt.status, tt.body), nil
			})
			err := c.Request(context.Background(), "/x", RequestOptions{}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.body, apiErr.Body)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestRequest_MalformedJSON(t *testing.T) {
	c := newTestClient("", func(r *http.Request) (*http.Response, error) {
		return respond(t, http.StatusOK, `{not json`), nil
	})
	var out map[string]any
	err := c.Request(context.Background(), "/x", RequestOptions{}, &out)
	require.Error(t, err)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}

func TestRequest_EmptySuccessBody(t *testing.T) {
	c := newTestClient("", func(r *http.Request) (*http.Response, error) {
		return respond(t, http.StatusNoContent, ""), nil
	})
	var out map[string]any
	require.NoError(t, c.Request(context.Background(), "/x", RequestOptions{Method: http.MethodDelete}, &out))
	assert.Nil(t, out)
}

func TestRequest_TransportErrorUnchanged(t *testing.T) {
	boom := errors.New("connection refused")
	c := newTestClient("", func(r *http.Request) (*http.Response, error) {
		return nil, boom
	})
	err := c.Request(context.Background(), "/x", RequestOptions{}, nil)
	var urlErr *url.Error
	require.ErrorAs(t, err, &urlErr)
	assert.ErrorIs(t, err, boom)
}

func TestRequest_TokenStoreFailure(t *testing.T) {
	storeErr := errors.New("disk on fire")
	c := New(&stubTokens{err: storeErr}, Options{
		BaseURL: "http://api.test/api",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			t.Error("request must not be sent")
			return nil, errors.New("unreachable")
		})},
	})
	err := c.Request(context.Background(), "/x", RequestOptions{}, nil)
	assert.ErrorIs(t, err, storeErr)
}

func TestRequest_UnauthorizedHook(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	c := newTestClient("stale", func(r *http.Request) (*http.Response, error) {
		return respond(t, http.StatusUnauthorized, "jwt expired"), nil
	})
	c.SetUnauthorizedHandler(func(ctx context.Context, err *APIError) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Equal(t, http.StatusUnauthorized, err.Status)
	})

	_ = c.Request(context.Background(), "/users/me", RequestOptions{}, nil)
	_ = c.Request(context.Background(), "/users/refresh-token", RequestOptions{SkipUnauthorizedHook: true}, nil)
	_, _ = c.RefreshToken(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestRequest_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&stubTokens{}, Options{BaseURL: ts.URL})
	err := c.Request(ctx, "/x", RequestOptions{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	c := New(&stubTokens{}, Options{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c = New(&stubTokens{}, Options{BaseURL: "http://x/api/"})
	assert.Equal(t, "http://x/api", c.BaseURL())
}
