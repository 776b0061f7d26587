package repository

import (
	"errors"
	"sort"
	"sync"

	"github.com/atinyakov/SchoolBus/internal/models"
)

// ErrNotFound is returned when a fleet record does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("not found")

// FleetRepository is the in-memory store of children, buses, routes,
// positions, bookings, attendance and notifications. All methods are safe for
// concurrent use and return copies.
type FleetRepository struct {
	mu            sync.RWMutex
	children      map[string][]models.Child // by parent id
	buses         map[string]models.Bus
	routes        map[string]models.Route
	locations     map[string]models.BusLocation // by bus id
	bookings      map[string]models.Booking
	attendances   map[string]models.Attendance // by student id and date
	notifications map[string][]models.Notification // by user id
}

// NewFleetRepository returns an empty repository.
func NewFleetRepository() *FleetRepository {
	return &FleetRepository{
		children:      make(map[string][]models.Child),
		buses:         make(map[string]models.Bus),
		routes:        make(map[string]models.Route),
		locations:     make(map[string]models.BusLocation),
		bookings:      make(map[string]models.Booking),
		attendances:   make(map[string]models.Attendance),
		notifications: make(map[string][]models.Notification),
	}
}

// Children lists the students linked to parentID.
func (r *FleetRepository) Children(parentID string) []models.Child {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Child{}, r.children[parentID]...)
}

// AddChild links c to parentID.
func (r *FleetRepository) AddChild(parentID string, c models.Child) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[parentID] = append(r.children[parentID], c)
}

// PutBus creates or replaces a bus.
func (r *FleetRepository) PutBus(b models.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buses[b.ID] = b
}

// Buses lists all buses ordered by id.
func (r *FleetRepository) Buses() []models.Bus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Bus, 0, len(r.buses))
	for _, b := range r.buses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Bus returns one bus.
func (r *FleetRepository) Bus(id string) (models.Bus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buses[id]
	if !ok {
		return models.Bus{}, ErrNotFound
	}
	return b, nil
}

// PutRoute creates or replaces a route.
func (r *FleetRepository) PutRoute(rt models.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[rt.ID] = rt
}

// Routes lists all routes ordered by id.
func (r *FleetRepository) Routes() []models.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route returns one route.
func (r *FleetRepository) Route(id string) (models.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[id]
	if !ok {
		return models.Route{}, ErrNotFound
	}
	return rt, nil
}

// PutLocation records the latest position of a bus.
func (r *FleetRepository) PutLocation(l models.BusLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[l.Bus.ID] = l
}

// ActiveLocations lists the positions of buses whose status is not inactive.
func (r *FleetRepository) ActiveLocations() []models.BusLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.BusLocation, 0, len(r.locations))
	for _, l := range r.locations {
		if l.Status != models.BusInactive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bus.ID < out[j].Bus.ID })
	return out
}

// PutBooking creates or replaces a booking.
func (r *FleetRepository) PutBooking(b models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = b
}

// Booking returns one booking.
func (r *FleetRepository) Booking(id string) (models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return models.Booking{}, ErrNotFound
	}
	return b, nil
}

// BookingsByParent lists a parent's bookings, newest date first. Empty
// filters match everything.
func (r *FleetRepository) BookingsByParent(parentID, status, date string) []models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Booking{}
	for _, b := range r.bookings {
		if b.ParentID != parentID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		if date != "" && b.Date != date {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PutAttendance records a student's attendance for a day. A second record
// for the same student and date replaces the first and keeps its id.
func (r *FleetRepository) PutAttendance(a models.Attendance) models.Attendance {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := a.UserID + "|" + a.Date
	if prev, ok := r.attendances[key]; ok {
		a.ID = prev.ID
	}
	r.attendances[key] = a
	return a
}

// AttendancesByStudents lists the records of the given students, newest
// date first.
func (r *FleetRepository) AttendancesByStudents(studentIDs []string) []models.Attendance {
	want := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Attendance{}
	for _, a := range r.attendances {
		if _, ok := want[a.UserID]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// AddNotification appends n to its recipient's inbox.
func (r *FleetRepository) AddNotification(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[n.UserID] = append(r.notifications[n.UserID], n)
}

// Notifications lists a user's inbox in arrival order.
func (r *FleetRepository) Notifications(userID string) []models.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Notification{}, r.notifications[userID]...)
}
