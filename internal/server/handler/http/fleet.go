package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/middleware"
	"github.com/atinyakov/SchoolBus/internal/models"
	"github.com/atinyakov/SchoolBus/internal/service"
)

// FleetService defines the fleet operations required by FleetHandler.
type FleetService interface {
	Children(parentID string) []models.Child
	AddChild(parentID string, c models.Child) models.Child
	Buses() []models.Bus
	Routes() []models.Route
	ActiveLocations() []models.BusLocation
	CreateBooking(parentID string, req models.BookingRequest) (models.Booking, error)
	ParentBookings(parentID, status, date string) []models.Booking
	CancelBooking(parentID, id string) (models.Booking, error)
	CreateAttendance(parentID string, req models.AttendanceRequest) (models.Attendance, error)
	ParentAttendances(parentID string) []models.Attendance
	Notifications(userID string) []models.Notification
}

// FleetHandler serves the parent-facing fleet endpoints.
type FleetHandler struct {
	Fleet     FleetService
	Validator *Validator
	Log       *zap.Logger
}

type childRequest struct {
	Name   string `json:"name" validate:"required"`
	Grade  string `json:"grade"`
	School string `json:"school"`
}

// Children handles GET /users/me/children.
func (h *FleetHandler) Children(w http.ResponseWriter, r *http.Request) {
	children := h.Fleet.Children(middleware.GetUserIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"children": nonNil(children)})
}

// AddChild handles POST /users/me/children.
func (h *FleetHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	child := h.Fleet.AddChild(middleware.GetUserIDFromContext(r.Context()), models.Child{
		Name:   req.Name,
		Grade:  req.Grade,
		School: req.School,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"child": child})
}

type attendanceRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	BusID     string `json:"busId"`
	RouteID   string `json:"routeId"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
}

// Buses handles GET /buses/all.
func (h *FleetHandler) Buses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"buses": nonNil(h.Fleet.Buses())})
}

// Routes handles GET /routes/. The list is the bare data value.
func (h *FleetHandler) Routes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Fleet.Routes()))
}

// ActiveLocations handles GET /bus-locations/active.
func (h *FleetHandler) ActiveLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": nonNil(h.Fleet.ActiveLocations())})
}

// CreateBooking handles POST /bookings/create.
func (h *FleetHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.Fleet.CreateBooking(middleware.GetUserIDFromContext(r.Context()), req)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Log.Error("create booking failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"booking": b})
}

// ParentBookings handles GET /bookings/parent with optional status and date filters.
func (h *FleetHandler) ParentBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookings := h.Fleet.ParentBookings(middleware.GetUserIDFromContext(r.Context()), q.Get("status"), q.Get("date"))
	writeJSON(w, http.StatusOK, map[string]any{"bookings": nonNil(bookings)})
}

// CancelBooking handles DELETE /bookings/cancel/{id}.
func (h *FleetHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Fleet.CancelBooking(middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

// CreateAttendance handles POST /attendances.
func (h *FleetHandler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.Fleet.CreateAttendance(middleware.GetUserIDFromContext(r.Context()), models.AttendanceRequest(req))
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		h.Log.Error("create attendance failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"attendance": a})
}

// ParentAttendances handles GET /attendances/parent.
func (h *FleetHandler) ParentAttendances(w http.ResponseWriter, r *http.Request) {
	records := h.Fleet.ParentAttendances(middleware.GetUserIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"attendances": nonNil(records)})
}

// Notifications handles GET /notifications/{userId}. Users may only read
// their own inbox.
func (h *FleetHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID != middleware.GetUserIDFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNil(h.Fleet.Notifications(userID))})
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
