package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/client/events"
	"github.com/atinyakov/SchoolBus/internal/client/storage"
	"github.com/atinyakov/SchoolBus/internal/models"
)

type fakeAPI struct {
	mu             sync.Mutex
	login          func(email, password string) (*api.AuthResult, error)
	registerSimple func(in api.RegisterInput) (*api.AuthResult, error)
	register       func(in api.RegisterInput) (*api.AuthResult, error)
	me             func() (*models.User, error)
	refresh        func() (string, error)
	refreshCalls   int
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*api.AuthResult, error) {
	return f.login(email, password)
}

func (f *fakeAPI) RegisterSimple(_ context.Context, in api.RegisterInput) (*api.AuthResult, error) {
	return f.registerSimple(in)
}

func (f *fakeAPI) Register(_ context.Context, in api.RegisterInput) (*api.AuthResult, error) {
	return f.register(in)
}

func (f *fakeAPI) Me(context.Context) (*models.User, error) {
	return f.me()
}

func (f *fakeAPI) RefreshToken(context.Context) (string, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refresh()
}

func (f *fakeAPI) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// manualTicker fires only when the test sends on ch.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { close(t.stopped) }

func tokenOf(t *testing.T, s storage.TokenStore) string {
	t.Helper()
	tok, _, err := s.Get(context.Background())
	require.NoError(t, err)
	return tok
}

func parent() models.User {
	return models.User{ID: "u1", Name: "Sara", Email: "p@x.io", Role: models.RoleParent}
}

func TestLogin_Success(t *testing.T) {
	store := storage.NewMemoryStore()
	fa := &fakeAPI{login: func(email, password string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, store)

	var seen []State
	m.Subscribe(func(_ models.User, s State) { seen = append(seen, s) })

	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))
	assert.Equal(t, "abc", tokenOf(t, store))
	assert.Equal(t, StateAuthenticated, m.State())
	u, ok := m.User()
	require.True(t, ok)
	assert.Equal(t, models.RoleParent, u.Role)
	assert.Equal(t, []State{StateAuthenticated}, seen)
}

func TestLogin_FailureLeavesStorage(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "previous"))
	rejected := &api.APIError{Status: 401, Body: "Invalid credentials"}
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) { return nil, rejected }}
	n := &notices{}
	m := NewManager(fa, store, WithNotifier(n))

	err := m.Login(context.Background(), "p@x.io", "bad")
	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, "previous", tokenOf(t, store))
	assert.Equal(t, StateUnauthenticated, m.State())
	require.Len(t, n.all(), 1)
	assert.Contains(t, n.all()[0], "Invalid credentials")
}

func TestLogin_StoreFailure(t *testing.T) {
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	n := &notices{}
	m := NewManager(fa, failingStore{err: errors.New("read-only fs")}, WithNotifier(n))

	err := m.Login(context.Background(), "p@x.io", "pw")
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Len(t, n.all(), 1)
}

func TestLogin_TwiceLastWriteWins(t *testing.T) {
	store := storage.NewMemoryStore()
	tokens := map[string]string{"a@x.io": "tok-a", "b@x.io": "tok-b"}
	fa := &fakeAPI{login: func(email, _ string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: tokens[email], User: models.User{ID: email}}, nil
	}}
	m := NewManager(fa, store)

	require.NoError(t, m.Login(context.Background(), "a@x.io", "pw"))
	require.NoError(t, m.Login(context.Background(), "b@x.io", "pw"))
	assert.Equal(t, "tok-b", tokenOf(t, store))
	u, _ := m.User()
	assert.Equal(t, "b@x.io", u.ID)
}

func TestRegister_Dispatch(t *testing.T) {
	var used string
	fa := &fakeAPI{
		register: func(api.RegisterInput) (*api.AuthResult, error) {
			used = "multipart"
			return &api.AuthResult{Token: "t1", User: parent()}, nil
		},
		registerSimple: func(api.RegisterInput) (*api.AuthResult, error) {
			used = "simple"
			return &api.AuthResult{Token: "t2", User: parent()}, nil
		},
	}
	store := storage.NewMemoryStore()
	m := NewManager(fa, store)

	require.NoError(t, m.Register(context.Background(), api.RegisterInput{Image: &api.ImageFile{URI: "file:///a.jpg"}}))
	assert.Equal(t, "multipart", used)
	assert.Equal(t, "t1", tokenOf(t, store))

	require.NoError(t, m.Register(context.Background(), api.RegisterInput{Image: &api.ImageFile{}}))
	assert.Equal(t, "simple", used)
	assert.Equal(t, "t2", tokenOf(t, store))
}

func TestRegister_FailureNotifiesFallback(t *testing.T) {
	fa := &fakeAPI{registerSimple: func(api.RegisterInput) (*api.AuthResult, error) {
		return nil, errors.New("")
	}}
	n := &notices{}
	m := NewManager(fa, storage.NewMemoryStore(), WithNotifier(n))

	require.Error(t, m.Register(context.Background(), api.RegisterInput{Name: "x"}))
	assert.Equal(t, []string{"Registration failed"}, n.all())
}

func TestLogout_Idempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, store)
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))

	m.Logout(context.Background())
	m.Logout(context.Background())

	_, found, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestLogout_StoreFailureStillClearsUser(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, store)
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))

	store.deleteErr = errors.New("locked")
	m.Logout(context.Background())
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestUpdateUser(t *testing.T) {
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, storage.NewMemoryStore())

	name := "Sara K."
	m.UpdateUser(models.UserPatch{Name: &name})
	_, ok := m.User()
	assert.False(t, ok, "no user, no-op")

	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))
	m.UpdateUser(models.UserPatch{Name: &name})
	u, _ := m.User()
	assert.Equal(t, "Sara K.", u.Name)
	assert.Equal(t, "p@x.io", u.Email)
}

func TestRefreshNow(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		refresh   func() (string, error)
		wantToken string
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "success replaces token",
			stored:    "old",
			refresh:   func() (string, error) { return "new-token", nil },
			wantToken: "new-token",
			wantCalls: 1,
		},
		{
			name:      "server error keeps token",
			stored:    "old",
			refresh:   func() (string, error) { return "", &api.APIError{Status: 500, Body: "boom"} },
			wantToken: "old",
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:      "missing token in response keeps token",
			stored:    "old",
			refresh:   func() (string, error) { return "", api.ErrNoRefreshToken },
			wantToken: "old",
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:      "no stored token skips the call",
			refresh:   func() (string, error) { return "never", nil },
			wantCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			if tt.stored != "" {
				require.NoError(t, store.Set(context.Background(), tt.stored))
			}
			fa := &fakeAPI{refresh: tt.refresh}
			n := &notices{}
			m := NewManager(fa, store, WithNotifier(n))

			err := m.RefreshNow(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantToken, tokenOf(t, store))
			assert.Equal(t, tt.wantCalls, fa.refreshes())
			assert.Empty(t, n.all(), "refresh never notifies the user")
		})
	}
}

func TestRestore(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(context.Background(), "abc"))
		refreshed := make(chan struct{})
		fa := &fakeAPI{
			me: func() (*models.User, error) { u := parent(); return &u, nil },
			refresh: func() (string, error) {
				close(refreshed)
				return "fresh", nil
			},
		}
		m := NewManager(fa, store)
		assert.True(t, m.Loading())

		m.Restore(context.Background())
		assert.False(t, m.Loading())
		assert.Equal(t, StateAuthenticated, m.State())

		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatal("expected a refresh after restore")
		}
		m.Stop()
		assert.Equal(t, "fresh", tokenOf(t, store))
	})

	t.Run("rejected token is deleted", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(context.Background(), "stale"))
		fa := &fakeAPI{me: func() (*models.User, error) {
			return nil, &api.APIError{Status: 401, Body: "jwt expired"}
		}}
		n := &notices{}
		m := NewManager(fa, store, WithNotifier(n))

		m.Restore(context.Background())
		assert.False(t, m.Loading())
		assert.Equal(t, StateUnauthenticated, m.State())
		_, found, _ := store.Get(context.Background())
		assert.False(t, found)
		assert.Empty(t, n.all())
	})

	t.Run("no token", func(t *testing.T) {
		fa := &fakeAPI{me: func() (*models.User, error) {
			t.Error("Me must not be called without a token")
			return nil, errors.New("unreachable")
		}}
		m := NewManager(fa, storage.NewMemoryStore())
		m.Restore(context.Background())
		assert.False(t, m.Loading())
		assert.Equal(t, StateUnauthenticated, m.State())
	})
}

func TestStart_RefreshLoop(t *testing.T) {
	store := storage.NewMemoryStore()
	ticker := newManualTicker()
	var (
		mu     sync.Mutex
		issued int
	)
	fa := &fakeAPI{refresh: func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		issued++
		if issued == 2 {
			return "", errors.New("backend down")
		}
		return "tok-" + string(rune('0'+issued)), nil
	}}
	m := NewManager(fa, store, WithTicker(func(d time.Duration) Ticker {
		assert.Equal(t, 15*time.Minute, d)
		return ticker
	}))
	m.Start(context.Background())
	assert.False(t, m.Loading())

	require.NoError(t, store.Set(context.Background(), "abc"))
	ticker.ch <- time.Now()
	// a second send only completes once the loop handled the previous tick
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	m.Stop()
	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker not stopped")
	}
	assert.Equal(t, 3, fa.refreshes())
	assert.Equal(t, "tok-3", tokenOf(t, store))
}

func TestStop_CancelsWithParentContext(t *testing.T) {
	ticker := newManualTicker()
	m := NewManager(&fakeAPI{}, storage.NewMemoryStore(), WithTicker(func(time.Duration) Ticker { return ticker }))
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()
	<-ticker.stopped
}

func TestStart_Twice(t *testing.T) {
	var tickers []*manualTicker
	m := NewManager(&fakeAPI{}, storage.NewMemoryStore(), WithTicker(func(time.Duration) Ticker {
		tk := newManualTicker()
		tickers = append(tickers, tk)
		return tk
	}))
	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()

	require.Len(t, tickers, 1, "second Start must not launch another loop")
	<-tickers[0].stopped
}

func TestRefreshNow_LogoutDuringRefresh(t *testing.T) {
	store := storage.NewMemoryStore()
	release := make(chan struct{})
	fa := &fakeAPI{
		login: func(string, string) (*api.AuthResult, error) {
			return &api.AuthResult{Token: "abc", User: parent()}, nil
		},
		refresh: func() (string, error) {
			<-release
			return "fresh", nil
		},
	}
	m := NewManager(fa, store)
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))

	done := make(chan error, 1)
	go func() { done <- m.RefreshNow(context.Background()) }()
	require.Eventually(t, func() bool { return fa.refreshes() == 1 }, time.Second, time.Millisecond)

	m.Logout(context.Background())
	close(release)
	require.NoError(t, <-done)

	_, found, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, found, "refreshed token must not outlive logout")
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestRefreshNow_ReloginDuringRefresh(t *testing.T) {
	store := storage.NewMemoryStore()
	release := make(chan struct{})
	logins := 0
	fa := &fakeAPI{
		login: func(string, string) (*api.AuthResult, error) {
			logins++
			return &api.AuthResult{Token: "login-" + string(rune('0'+logins)), User: parent()}, nil
		},
		refresh: func() (string, error) {
			<-release
			return "stale", nil
		},
	}
	m := NewManager(fa, store)
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))

	done := make(chan error, 1)
	go func() { done <- m.RefreshNow(context.Background()) }()
	require.Eventually(t, func() bool { return fa.refreshes() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "login-2", tokenOf(t, store))
}

func TestUpdateUser_ConcurrentLogout(t *testing.T) {
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, storage.NewMemoryStore())
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))

	name := "Sara K."
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.UpdateUser(models.UserPatch{Name: &name})
		}
	}()
	go func() {
		defer wg.Done()
		m.Logout(context.Background())
	}()
	wg.Wait()

	_, ok := m.User()
	assert.False(t, ok, "an update must not bring back a signed-out user")
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestOnUnauthorized(t *testing.T) {
	store := storage.NewMemoryStore()
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	bus := events.NewBus(nil)
	n := &notices{}
	m := NewManager(fa, store, WithEvents(bus), WithNotifier(n))

	expired := 0
	bus.Subscribe(events.TopicSessionExpired, func(any) { expired++ })
	var changes []Change
	bus.Subscribe(events.TopicSession, func(p any) { changes = append(changes, p.(Change)) })

	// signed out: ignored
	m.OnUnauthorized(context.Background(), &api.APIError{Status: 401})
	assert.Zero(t, expired)

	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))
	m.OnUnauthorized(context.Background(), &api.APIError{Status: 401, Body: "jwt expired"})

	assert.Equal(t, 1, expired)
	assert.Equal(t, StateUnauthenticated, m.State())
	_, found, _ := store.Get(context.Background())
	assert.False(t, found)
	assert.Equal(t, []string{msgSessionExpired}, n.all())
	require.Len(t, changes, 2)
	assert.Equal(t, StateAuthenticated, changes[0].State)
	assert.Equal(t, StateUnauthenticated, changes[1].State)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	fa := &fakeAPI{login: func(string, string) (*api.AuthResult, error) {
		return &api.AuthResult{Token: "abc", User: parent()}, nil
	}}
	m := NewManager(fa, storage.NewMemoryStore())
	calls := 0
	unsub := m.Subscribe(func(models.User, State) { calls++ })
	require.NoError(t, m.Login(context.Background(), "p@x.io", "pw"))
	unsub()
	m.Logout(context.Background())
	assert.Equal(t, 1, calls)
}

func TestIsExpired(t *testing.T) {
	assert.True(t, IsExpired(&api.APIError{Status: 401}))
	assert.False(t, IsExpired(&api.APIError{Status: 500}))
	assert.False(t, IsExpired(nil))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context) (string, bool, error) { return "", false, nil }
func (f failingStore) Set(context.Context, string) error         { return f.err }
func (f failingStore) Delete(context.Context) error              { return f.err }

type flakyStore struct {
	*storage.MemoryStore
	deleteErr error
}

func (s *flakyStore) Delete(ctx context.Context) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx)
}
