// Package session owns the signed-in user and the lifecycle of the bearer
// token: restoring it at start-up, login and registration, logout, local
// profile edits and the periodic silent refresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/client/events"
	"github.com/atinyakov/SchoolBus/internal/client/storage"
	"github.com/atinyakov/SchoolBus/internal/metrics"
	"github.com/atinyakov/SchoolBus/internal/models"
)

// API is the part of *api.Client the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (*api.AuthResult, error)
	RegisterSimple(ctx context.Context, in api.RegisterInput) (*api.AuthResult, error)
	Register(ctx context.Context, in api.RegisterInput) (*api.AuthResult, error)
	Me(ctx context.Context) (*models.User, error)
	RefreshToken(ctx context.Context) (string, error)
}

// State is the authentication state of a Manager.
type State int

const (
	// StateUnauthenticated means no user is signed in.
	StateUnauthenticated State = iota
	// StateAuthenticated means a user is signed in and a token is stored.
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Change is published on events.TopicSession after every transition.
type Change struct {
	User  models.User
	State State
}

const (
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
	msgSessionExpired = "Your session has expired. Please log in again."
)

// Manager holds the current user. It is safe for concurrent use.
type Manager struct {
	api      API
	store    storage.TokenStore
	log      *zap.Logger
	notifier Notifier
	bus      *events.Bus
	ownsBus  bool

	interval  time.Duration
	newTicker func(time.Duration) Ticker

	mu        sync.RWMutex
	user      *models.User
	loading   bool
	observers map[uint64]func(models.User, State)
	nextObs   uint64

	// tokenMu serialises writes to store. epoch changes on every sign-in
	// and sign-out; a refresh that started in an older epoch is discarded.
	tokenMu sync.Mutex
	epoch   uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager in StateUnauthenticated. Call Start to restore
// a stored session and begin refreshing.
func NewManager(client API, store storage.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		api:       client,
		store:     store,
		log:       zap.NewNop(),
		interval:  DefaultRefreshInterval,
		newTicker: newTimeTicker,
		loading:   true,
		observers: make(map[uint64]func(models.User, State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = logNotifier{log: m.log}
	}
	if m.bus == nil {
		m.bus = events.NewBus(m.log)
		m.ownsBus = true
	}
	return m
}

// Events returns the bus session changes are published on.
func (m *Manager) Events() *events.Bus {
	return m.bus
}

// User returns a copy of the signed-in user.
func (m *Manager) User() (models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return models.User{}, false
	}
	return m.user.Clone(), true
}

// State reports whether a user is signed in.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	if m.user != nil {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Loading is true until the first Restore has finished.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Subscribe registers fn to be called after every change of the user or state.
func (m *Manager) Subscribe(fn func(models.User, State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextObs++
	id := m.nextObs
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// setUser replaces the user (nil signs out) and notifies observers.
func (m *Manager) setUser(u *models.User) {
	m.mu.Lock()
	if u != nil {
		c := u.Clone()
		u = &c
	}
	m.user = u
	m.notifyLocked()
}

// notifyLocked snapshots the state, releases m.mu and notifies observers.
func (m *Manager) notifyLocked() {
	change := Change{State: m.stateLocked()}
	if m.user != nil {
		change.User = m.user.Clone()
	}
	fns := make([]func(models.User, State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(change.User, change.State)
	}
	m.bus.Publish(events.TopicSession, change)
}

// Start restores a stored session and launches the refresh loop. The loop
// runs until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		m.log.Warn("session manager already started")
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.Restore(ctx)

	ticker := m.newTicker(m.interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if err := m.RefreshNow(ctx); err != nil {
					m.log.Warn("silent token refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels the refresh loop and waits for background work to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	if m.ownsBus {
		m.bus.Close()
	}
}

// Restore signs in with the stored token, if any. A token the backend no
// longer accepts is deleted. Failures are logged, never returned.
func (m *Manager) Restore(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	_, found, err := m.store.Get(ctx)
	if err != nil {
		m.log.Error("failed to read stored token", zap.Error(err))
		return
	}
	if !found {
		return
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		m.log.Info("stored session rejected", zap.Error(err))
		if err := m.deleteToken(ctx); err != nil {
			m.log.Error("failed to delete stored token", zap.Error(err))
		}
		return
	}
	m.setUser(user)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.RefreshNow(ctx); err != nil {
			m.log.Warn("token refresh after restore failed", zap.Error(err))
		}
	}()
}

// Login signs in with credentials. On failure the user is notified, the
// error is returned and the stored token is left untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.fail(err, msgLoginFailed)
		return err
	}
	return m.signIn(ctx, res, msgLoginFailed)
}

// Register creates an account and signs in. A form with an image is sent
// as a multipart upload.
func (m *Manager) Register(ctx context.Context, in api.RegisterInput) error {
	var (
		res *api.AuthResult
		err error
	)
	if in.Image != nil && in.Image.URI != "" {
		res, err = m.api.Register(ctx, in)
	} else {
		res, err = m.api.RegisterSimple(ctx, in)
	}
	if err != nil {
		m.fail(err, msgRegisterFailed)
		return err
	}
	return m.signIn(ctx, res, msgRegisterFailed)
}

func (m *Manager) signIn(ctx context.Context, res *api.AuthResult, fallback string) error {
	m.tokenMu.Lock()
	m.epoch++
	err := m.store.Set(ctx, res.Token)
	m.tokenMu.Unlock()
	if err != nil {
		err = fmt.Errorf("store token: %w", err)
		m.fail(err, fallback)
		return err
	}
	m.setUser(&res.User)
	m.log.Info("signed in", zap.String("user_id", res.User.ID), zap.String("role", string(res.User.Role)))
	return nil
}

func (m *Manager) fail(err error, fallback string) {
	msg := fallback
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	m.notifier.Notify(msg)
}

// Logout deletes the stored token and clears the user. A storage failure is
// logged; the user is cleared regardless.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.deleteToken(ctx); err != nil {
		m.log.Error("failed to delete stored token", zap.Error(err))
	}
	m.setUser(nil)
}

// UpdateUser merges p into the signed-in user. It does not call the backend
// and does nothing when no user is signed in.
func (m *Manager) UpdateUser(p models.UserPatch) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	merged := m.user.Merge(p)
	m.user = &merged
	m.notifyLocked()
}

// deleteToken removes the stored token and starts a new epoch so that an
// in-flight refresh cannot write it back.
func (m *Manager) deleteToken(ctx context.Context) error {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	m.epoch++
	return m.store.Delete(ctx)
}

// RefreshNow exchanges the stored token for a new one. It does nothing when
// no token is stored. On failure the stored token is kept.
func (m *Manager) RefreshNow(ctx context.Context) error {
	m.tokenMu.Lock()
	epoch := m.epoch
	_, found, err := m.store.Get(ctx)
	m.tokenMu.Unlock()
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("read stored token: %w", err)
	}
	if !found {
		metrics.TokenRefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	token, err := m.api.RefreshToken(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	if m.epoch != epoch {
		metrics.TokenRefreshTotal.WithLabelValues("skipped").Inc()
		m.log.Debug("session changed during refresh, discarding token")
		return nil
	}
	if err := m.store.Set(ctx, token); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("store refreshed token: %w", err)
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	m.log.Debug("token refreshed")
	return nil
}

// OnUnauthorized is meant for api.Options.OnUnauthorized. When a signed-in
// user's request is rejected with 401 the session is ended and
// events.TopicSessionExpired is published.
func (m *Manager) OnUnauthorized(ctx context.Context, apiErr *api.APIError) {
	if m.State() != StateAuthenticated {
		return
	}
	m.log.Info("session expired", zap.Error(apiErr))
	m.Logout(ctx)
	m.notifier.Notify(msgSessionExpired)
	m.bus.Publish(events.TopicSessionExpired, apiErr)
}

// IsExpired reports whether err means the backend rejected the token.
func IsExpired(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}
