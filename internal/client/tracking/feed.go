// Package tracking follows live bus positions pushed over a WebSocket.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/metrics"
)

// EventBusLocation is the event name of a position update.
const EventBusLocation = "busLocation"

const defaultReadLimit = 1 << 20 // 1MiB

// Position is the latest reported location of one bus.
type Position struct {
	BusID      string    `json:"busId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	Status     string    `json:"status,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// Message is one frame on the feed.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DialOptions configures Dial.
type DialOptions struct {
	// HTTPClient is used for the handshake, e.g. to share a TLS transport.
	HTTPClient *http.Client
	// Header is sent with the handshake.
	Header http.Header
	// ReadLimit caps the size of one frame. Zero means 1MiB.
	ReadLimit int64
	Logger    *zap.Logger
}

// Feed is an open position stream.
type Feed struct {
	conn *websocket.Conn
	log  *zap.Logger
}

// Dial opens the feed at rawURL. http and https URLs are converted to ws and wss.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Feed, error) {
	wsURL, err := socketURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: opts.Header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{conn: conn, log: log}, nil
}

func socketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported socket scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("socket url missing host")
	}
	return u.String(), nil
}

// Run reads frames until ctx is done or the server closes the connection,
// calling fn for every position update. Other events are ignored and
// malformed frames are logged and skipped. A normal close or a cancelled
// ctx ends Run without error.
func (f *Feed) Run(ctx context.Context, fn func(Position)) error {
	for {
		mt, data, err := f.conn.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Warn("malformed feed frame", zap.Error(err))
			continue
		}
		if msg.Event != EventBusLocation {
			continue
		}

		var p Position
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.BusID == "" {
			f.log.Warn("malformed bus position", zap.Error(err), zap.ByteString("data", msg.Data))
			continue
		}
		p.ReceivedAt = time.Now()
		metrics.LiveUpdatesTotal.Inc()
		fn(p)
	}
}

// Close ends the feed with a normal closure.
func (f *Feed) Close() error {
	return f.conn.Close(websocket.StatusNormalClosure, "bye")
}
