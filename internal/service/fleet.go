package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/SchoolBus/internal/models"
	"github.com/atinyakov/SchoolBus/internal/repository"
)

// ErrNotFound is returned for records that do not exist or belong to someone else.
var ErrNotFound = repository.ErrNotFound

// FleetService serves the parent-facing fleet endpoints.
type FleetService struct {
	repo *repository.FleetRepository
	now  func() time.Time
}

// NewFleetService constructs a FleetService over repo.
func NewFleetService(repo *repository.FleetRepository) *FleetService {
	return &FleetService{repo: repo, now: time.Now}
}

// Children lists the students of parentID.
func (s *FleetService) Children(parentID string) []models.Child {
	return s.repo.Children(parentID)
}

// AddChild links a new student to parentID and returns it with its id.
func (s *FleetService) AddChild(parentID string, c models.Child) models.Child {
	c.ID = uuid.NewString()
	s.repo.AddChild(parentID, c)
	return c
}

// Buses lists the fleet.
func (s *FleetService) Buses() []models.Bus {
	return s.repo.Buses()
}

// Routes lists all routes.
func (s *FleetService) Routes() []models.Route {
	return s.repo.Routes()
}

// ActiveLocations lists the positions of buses on the road.
func (s *FleetService) ActiveLocations() []models.BusLocation {
	return s.repo.ActiveLocations()
}

// UpdateLocation stores a new position.
func (s *FleetService) UpdateLocation(l models.BusLocation) {
	s.repo.PutLocation(l)
}

// CreateBooking reserves a seat for one of the parent's children.
func (s *FleetService) CreateBooking(parentID string, req models.BookingRequest) (models.Booking, error) {
	bus, err := s.repo.Bus(req.BusID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("bus %s: %w", req.BusID, err)
	}
	route, err := s.repo.Route(req.RouteID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("route %s: %w", req.RouteID, err)
	}

	student := models.Ref{ID: req.StudentID}
	for _, c := range s.repo.Children(parentID) {
		if c.ID == req.StudentID {
			student.Name = c.Name
		}
	}

	now := s.now().UTC().Format(time.RFC3339)
	b := models.Booking{
		ID:              uuid.NewString(),
		Student:         student,
		ParentID:        parentID,
		Bus:             models.Ref{ID: bus.ID, BusNumber: bus.BusNumber, Capacity: bus.Capacity},
		Route:           models.Ref{ID: route.ID, Name: route.Name},
		Date:            req.Date,
		Status:          models.BookingPending,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.repo.PutBooking(b)

	s.repo.AddNotification(models.Notification{
		ID:        uuid.NewString(),
		UserID:    parentID,
		Title:     "Booking received",
		Message:   fmt.Sprintf("Bus %s on %s is pending confirmation.", bus.BusNumber, req.Date),
		Type:      models.NotificationInfo,
		CreatedAt: now,
	})
	return b, nil
}

// ParentBookings lists the parent's bookings with optional filters.
func (s *FleetService) ParentBookings(parentID, status, date string) []models.Booking {
	return s.repo.BookingsByParent(parentID, status, date)
}

// CancelBooking marks one of the parent's bookings cancelled. Cancelling
// twice is not an error.
func (s *FleetService) CancelBooking(parentID, id string) (models.Booking, error) {
	b, err := s.repo.Booking(id)
	if err != nil {
		return models.Booking{}, err
	}
	if b.ParentID != parentID {
		return models.Booking{}, ErrNotFound
	}
	if b.Status == models.BookingCompleted {
		return models.Booking{}, errors.New("completed bookings cannot be cancelled")
	}
	b.Status = models.BookingCancelled
	b.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	s.repo.PutBooking(b)
	return b, nil
}

// CreateAttendance marks one of the parent's children for today or
// req.Date. Bus and route default to the child's assignment.
func (s *FleetService) CreateAttendance(parentID string, req models.AttendanceRequest) (models.Attendance, error) {
	var (
		child models.Child
		found bool
	)
	for _, c := range s.repo.Children(parentID) {
		if c.ID == req.StudentID {
			child, found = c, true
			break
		}
	}
	if !found {
		return models.Attendance{}, fmt.Errorf("student %s: %w", req.StudentID, ErrNotFound)
	}

	now := s.now().UTC()
	a := models.Attendance{
		ID:      uuid.NewString(),
		UserID:  child.ID,
		BusID:   req.BusID,
		RouteID: req.RouteID,
		Date:    req.Date,
		Status:  req.Status,
	}
	if a.BusID == "" {
		a.BusID = child.BusID
	}
	if a.RouteID == "" {
		a.RouteID = child.RouteID
	}
	if a.Date == "" {
		a.Date = now.Format(time.DateOnly)
	}
	if a.Status != models.AttendanceAbsent {
		a.CheckInTime = now.Format(time.RFC3339)
	}
	return s.repo.PutAttendance(a), nil
}

// ParentAttendances lists the attendance of all of the parent's children.
func (s *FleetService) ParentAttendances(parentID string) []models.Attendance {
	children := s.repo.Children(parentID)
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return s.repo.AttendancesByStudents(ids)
}

// Notifications lists a user's inbox.
func (s *FleetService) Notifications(userID string) []models.Notification {
	return s.repo.Notifications(userID)
}

// Seed loads a small demo fleet: one route, two buses on the road and a
// welcome notification plus one child for parentID when it is set.
func (s *FleetService) Seed(parentID string) {
	start := models.Point{Name: "North Gate", Lat: 24.7136, Long: 46.6753}
	end := models.Point{Name: "Al Noor School", Lat: 24.7240, Long: 46.6900}
	route := models.Route{
		ID:         "route-1",
		Name:       "North Loop",
		StartPoint: start,
		EndPoint:   end,
		Stops: []models.RouteStop{
			{ID: "stop-1", Name: start.Name, Latitude: start.Lat, Longitude: start.Long, Order: 1},
			{ID: "stop-2", Name: end.Name, Latitude: end.Lat, Longitude: end.Long, Order: 2},
		},
		EstimatedTime: "25 min",
	}
	s.repo.PutRoute(route)

	routeRef := &models.Ref{ID: route.ID, Name: route.Name}
	now := s.now().UTC().Format(time.RFC3339)
	for i, num := range []string{"101", "102"} {
		bus := models.Bus{
			ID:        fmt.Sprintf("bus-%d", i+1),
			BusNumber: num,
			Capacity:  30,
			Route:     routeRef,
			Status:    models.BusActive,
		}
		s.repo.PutBus(bus)
		s.repo.PutLocation(models.BusLocation{
			ID:              uuid.NewString(),
			Bus:             models.Ref{ID: bus.ID, BusNumber: bus.BusNumber},
			Route:           models.Ref{ID: route.ID, Name: route.Name},
			CurrentLocation: models.Coordinates{Latitude: start.Lat + float64(i)*0.002, Longitude: start.Long},
			Speed:           35,
			Heading:         45,
			Status:          models.BusActive,
			LastUpdate:      now,
		})
	}

	if parentID == "" {
		return
	}
	s.repo.AddChild(parentID, models.Child{
		ID: "child-1", Name: "Omar", Grade: "4", School: end.Name, BusID: "bus-1", RouteID: route.ID,
	})
	s.repo.AddNotification(models.Notification{
		ID:        uuid.NewString(),
		UserID:    parentID,
		Title:     "Welcome",
		Message:   "Your account is ready. Book a seat with the book command.",
		Type:      models.NotificationSuccess,
		CreatedAt: now,
	})
}
