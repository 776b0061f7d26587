package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/client/session"
	"github.com/atinyakov/SchoolBus/internal/client/storage"
	"github.com/atinyakov/SchoolBus/internal/client/tracking"
	"github.com/atinyakov/SchoolBus/internal/models"
	"github.com/atinyakov/SchoolBus/internal/repository"
	handler "github.com/atinyakov/SchoolBus/internal/server/handler/http"
	"github.com/atinyakov/SchoolBus/internal/service"
)

func newStubServer(t *testing.T) (*httptest.Server, *handler.Hub) {
	t.Helper()
	auth := service.NewAuthService(repository.NewMemoryUserRepository(), "test-secret", time.Hour)
	_, user, err := auth.Register(context.Background(), service.RegisterParams{
		Name: "Demo Parent", Email: "parent@example.com", Password: "password123",
	})
	require.NoError(t, err)
	fleet := service.NewFleetService(repository.NewFleetRepository())
	fleet.Seed(user.ID)

	hub := handler.NewHub(nil)
	v := handler.NewValidator()
	srv := httptest.NewServer(handler.NewRouter(
		&handler.AuthHandler{AuthService: auth, Validator: v, Log: zap.NewNop()},
		&handler.FleetHandler{Fleet: fleet, Validator: v, Log: zap.NewNop()},
		hub, auth, zap.NewNop(),
	))
	t.Cleanup(srv.Close)
	return srv, hub
}

func runShell(t *testing.T, srv *httptest.Server, input string) string {
	t.Helper()
	var out bytes.Buffer
	store := storage.NewMemoryStore()
	client := api.New(store, api.Options{BaseURL: srv.URL + "/api"})

	sh := &shell{
		api:       client,
		board:     tracking.NewBoard(),
		socketURL: srv.URL + "/socket",
		in:        newPrompter(strings.NewReader(input), &out),
		out:       &out,
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) },
	}
	sh.sess = session.NewManager(client, store, session.WithNotifier(session.NotifierFunc(sh.notice)))
	client.SetUnauthorizedHandler(sh.sess.OnUnauthorized)
	defer sh.sess.Stop()

	ctx := context.Background()
	defer sh.watch(ctx)()
	sh.run(ctx)
	return out.String()
}

func TestShell_Session(t *testing.T) {
	srv, _ := newStubServer(t)

	out := runShell(t, srv, strings.Join([]string{
		"buses",
		"login", "parent@example.com", "nope",
		"login", "parent@example.com", "password123",
		"me",
		"children",
		"buses",
		"routes",
		"locations",
		"frobnicate",
		"logout",
		"me",
		"exit",
	}, "\n")+"\n")

	assert.Contains(t, out, "! Please log in first")
	assert.Contains(t, out, "! API Error: 401 - Invalid credentials")
	assert.Equal(t, 1, strings.Count(out, "Signed in as Demo Parent (parent)"))
	assert.Contains(t, out, "Demo Parent <parent@example.com>")
	assert.Contains(t, out, "Omar")
	assert.Contains(t, out, "bus-2")
	assert.Contains(t, out, "North Loop")
	assert.Contains(t, out, "24.71360")
	assert.Contains(t, out, "Unknown command")
	assert.Contains(t, out, "Logged out")
	assert.Equal(t, 2, strings.Count(out, "! Please log in first"))
	assert.True(t, strings.HasSuffix(out, "Bye\n"))
}

func TestShell_Register(t *testing.T) {
	srv, _ := newStubServer(t)

	out := runShell(t, srv, strings.Join([]string{
		"register", "Dana Driver", "dana@example.com", "secret99", "driver", "", "",
		"me",
		"logout",
		"register", "Pat Parent", "pat@example.com", "secret99", "", "", "",
		"exit",
	}, "\n")+"\n")

	assert.Contains(t, out, "Role (parent/driver/admin/manager) [parent]: ")
	assert.Contains(t, out, "Signed in as Dana Driver (driver)")
	assert.Contains(t, out, "Dana Driver <dana@example.com>")
	assert.Contains(t, out, "Signed in as Pat Parent (parent)")
}

func TestShell_Bookings(t *testing.T) {
	srv, _ := newStubServer(t)

	out := runShell(t, srv, strings.Join([]string{
		"login", "parent@example.com", "password123",
		"book", "child-1", "bus-1", "route-1", "", "window seat",
		"bookings pending",
		"cancel",
		"notifications",
		"mark child-1 asleep",
	}, "\n")+"\n")

	assert.Contains(t, out, "is pending")
	assert.Contains(t, out, "2026-03-02")
	assert.Contains(t, out, "Omar")
	assert.Contains(t, out, "Usage: cancel <id>")
	assert.Contains(t, out, "* [info] Booking received")
	assert.Contains(t, out, "! status must be one of: present, absent, late")
}

func TestShell_Attendance(t *testing.T) {
	srv, _ := newStubServer(t)

	out := runShell(t, srv, strings.Join([]string{
		"login", "parent@example.com", "password123",
		"attendance",
		"mark child-1 present",
		"mark child-9 late",
		"attendance",
	}, "\n")+"\n")

	assert.Contains(t, out, "No attendance records")
	recorded := strings.Index(out, "Attendance recorded")
	require.GreaterOrEqual(t, recorded, 0, out)
	refreshed := strings.Index(out, "Dashboard refreshed: 1 children, 0 bookings")
	require.Greater(t, refreshed, recorded, out)
	assert.Contains(t, out, "! API Error: 404 - student not found")
	assert.Regexp(t, `2026-03-02\s+child-1\s+bus-1\s+present`, out)
}

func TestShell_Track(t *testing.T) {
	srv, hub := newStubServer(t)

	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for hub.Clients() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		hub.Broadcast(models.BusLocation{
			Bus:             models.Ref{ID: "bus-9"},
			CurrentLocation: models.Coordinates{Latitude: 1.5, Longitude: 2.5},
			Status:          models.BusActive,
		})
	}()

	out := runShell(t, srv, "login\nparent@example.com\npassword123\ntrack 1\ntrack x\n")

	assert.Contains(t, out, "bus-9  1.50000,2.50000  active")
	assert.Contains(t, out, "1 buses seen")
	assert.Contains(t, out, "Usage: track [seconds]")
}
