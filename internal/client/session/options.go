package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/client/events"
)

// DefaultRefreshInterval is how often the stored token is silently refreshed.
const DefaultRefreshInterval = 15 * time.Minute

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string) { f(message) }

type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Notify(message string) {
	n.log.Info("user notice", zap.String("message", message))
}

// Ticker is the subset of *time.Ticker the refresh loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshInterval overrides DefaultRefreshInterval. Non-positive values are ignored.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithNotifier sets where login, registration and expiry notices go.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithEvents publishes session changes on bus. The caller keeps ownership of bus.
func WithEvents(bus *events.Bus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
			m.ownsBus = false
		}
	}
}

// WithTicker replaces the ticker factory used by the refresh loop.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(m *Manager) {
		if newTicker != nil {
			m.newTicker = newTicker
		}
	}
}
