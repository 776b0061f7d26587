package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/atinyakov/SchoolBus/internal/models"
)

func list[T any](ctx context.Context, c *Client, path string, query url.Values, keys ...string) ([]T, error) {
	var raw json.RawMessage
	if err := c.Request(ctx, path, RequestOptions{Query: query}, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw, keys...)
}

func one[T any](ctx context.Context, c *Client, method, path string, body any, key string) (*T, error) {
	var raw json.RawMessage
	if err := c.Request(ctx, path, RequestOptions{Method: method, Body: body}, &raw); err != nil {
		return nil, err
	}
	return decodeOne[T](raw, key)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	return c.Request(ctx, path, RequestOptions{Method: method, Body: body}, nil)
}

func seg(id string) string {
	return "/" + url.PathEscape(id)
}

// Children

func (c *Client) MyChildren(ctx context.Context) ([]models.Child, error) {
	return list[models.Child](ctx, c, "/users/me/children", nil, "children")
}

func (c *Client) AddChild(ctx context.Context, child models.Child) (*models.Child, error) {
	return one[models.Child](ctx, c, http.MethodPost, "/users/me/children", child, "child")
}

func (c *Client) DeleteChild(ctx context.Context, childID string) error {
	return c.send(ctx, http.MethodDelete, "/users/children"+seg(childID), nil)
}

// Attendance

func (c *Client) Attendances(ctx context.Context) ([]models.Attendance, error) {
	return list[models.Attendance](ctx, c, "/attendances", nil, "attendances", "attendance")
}

func (c *Client) ParentAttendances(ctx context.Context) ([]models.Attendance, error) {
	return list[models.Attendance](ctx, c, "/attendances/parent", nil, "attendances", "attendance")
}

func (c *Client) CreateAttendance(ctx context.Context, req models.AttendanceRequest) (*models.Attendance, error) {
	return one[models.Attendance](ctx, c, http.MethodPost, "/attendances", req, "attendance")
}

func (c *Client) UpdateAttendance(ctx context.Context, id string, req models.AttendanceRequest) (*models.Attendance, error) {
	return one[models.Attendance](ctx, c, http.MethodPut, "/attendances"+seg(id), req, "attendance")
}

func (c *Client) AttendanceStats(ctx context.Context) (models.AttendanceStats, error) {
	stats, err := one[models.AttendanceStats](ctx, c, http.MethodGet, "/attendances/stats", nil, "stats")
	if err != nil {
		return nil, err
	}
	return *stats, nil
}

// Fleet

func (c *Client) Buses(ctx context.Context) ([]models.Bus, error) {
	return list[models.Bus](ctx, c, "/buses/all", nil, "buses")
}

func (c *Client) CreateBus(ctx context.Context, req models.BusRequest) (*models.Bus, error) {
	return one[models.Bus](ctx, c, http.MethodPost, "/buses/create", req, "bus")
}

func (c *Client) UpdateBus(ctx context.Context, id string, req models.BusRequest) (*models.Bus, error) {
	return one[models.Bus](ctx, c, http.MethodPut, "/buses"+seg(id), req, "bus")
}

func (c *Client) DeleteBus(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/buses"+seg(id), nil)
}

func (c *Client) Drivers(ctx context.Context) ([]models.Person, error) {
	return list[models.Person](ctx, c, "/users/drivers", nil, "drivers", "users")
}

func (c *Client) Users(ctx context.Context) ([]models.Person, error) {
	return list[models.Person](ctx, c, "/users/", nil, "users")
}

// Routes

func (c *Client) Routes(ctx context.Context) ([]models.Route, error) {
	return list[models.Route](ctx, c, "/routes/", nil, "routes")
}

func (c *Client) Route(ctx context.Context, id string) (*models.Route, error) {
	return one[models.Route](ctx, c, http.MethodGet, "/routes"+seg(id), nil, "route")
}

func (c *Client) CreateRoute(ctx context.Context, req models.RouteRequest) (*models.Route, error) {
	return one[models.Route](ctx, c, http.MethodPost, "/routes/", req, "route")
}

func (c *Client) UpdateRoute(ctx context.Context, id string, req models.RouteRequest) (*models.Route, error) {
	return one[models.Route](ctx, c, http.MethodPut, "/routes"+seg(id), req, "route")
}

func (c *Client) DeleteRoute(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/routes"+seg(id), nil)
}

// Tracking

func (c *Client) ActiveBuses(ctx context.Context) ([]models.BusLocation, error) {
	return list[models.BusLocation](ctx, c, "/trackingRoutes/active-buses", nil, "buses", "locations")
}

func (c *Client) BusTrack(ctx context.Context, busID string) (*models.BusLocation, error) {
	return one[models.BusLocation](ctx, c, http.MethodGet, "/trackingRoutes/bus"+seg(busID), nil, "location")
}

func (c *Client) BusHistory(ctx context.Context, busID string) ([]models.BusLocation, error) {
	return list[models.BusLocation](ctx, c, "/trackingRoutes/bus"+seg(busID)+"/history", nil, "history", "locations")
}

func (c *Client) ActiveBusLocations(ctx context.Context) ([]models.BusLocation, error) {
	return list[models.BusLocation](ctx, c, "/bus-locations/active", nil, "locations", "busLocations")
}

func (c *Client) BusLocation(ctx context.Context, busID string) (*models.BusLocation, error) {
	return one[models.BusLocation](ctx, c, http.MethodGet, "/bus-locations/bus"+seg(busID), nil, "location")
}

func (c *Client) BusLocationsByRoute(ctx context.Context, routeID string) ([]models.BusLocation, error) {
	return list[models.BusLocation](ctx, c, "/bus-locations/route"+seg(routeID), nil, "locations", "busLocations")
}

// Bookings

func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	return one[models.Booking](ctx, c, http.MethodPost, "/bookings/create", req, "booking")
}

// ParentBookings lists the caller's bookings. Empty filters are omitted.
func (c *Client) ParentBookings(ctx context.Context, status, date string) ([]models.Booking, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if date != "" {
		q.Set("date", date)
	}
	return list[models.Booking](ctx, c, "/bookings/parent", q, "bookings")
}

func (c *Client) StudentBookings(ctx context.Context, studentID string) ([]models.Booking, error) {
	return list[models.Booking](ctx, c, "/bookings/student"+seg(studentID), nil, "bookings")
}

func (c *Client) UpdateBookingStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	body := map[string]string{"status": status}
	return one[models.Booking](ctx, c, http.MethodPut, "/bookings/status"+seg(id), body, "booking")
}

func (c *Client) CancelBooking(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/bookings/cancel"+seg(id), nil)
}

func (c *Client) AvailableBuses(ctx context.Context, routeID, date string) ([]models.Bus, error) {
	q := url.Values{"routeId": {routeID}, "date": {date}}
	return list[models.Bus](ctx, c, "/bookings/available-buses", q, "buses")
}

// Notifications

func (c *Client) Notifications(ctx context.Context, userID string) ([]models.Notification, error) {
	return list[models.Notification](ctx, c, "/notifications"+seg(userID), nil, "notifications", "messages")
}

func (c *Client) UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	return list[models.Notification](ctx, c, "/notifications"+seg(userID)+"/unread", nil, "notifications", "messages")
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPut, "/notifications"+seg(id)+"/read", nil)
}

func (c *Client) SendNotification(ctx context.Context, req models.NotificationRequest) (*models.Notification, error) {
	return one[models.Notification](ctx, c, http.MethodPost, "/notifications", req, "notification")
}

// Trips, assignments and reports

// Trips lists trips, optionally restricted to one date.
func (c *Client) Trips(ctx context.Context, date string) ([]models.Trip, error) {
	var q url.Values
	if date != "" {
		q = url.Values{"date": {date}}
	}
	return list[models.Trip](ctx, c, "/trips", q, "trips")
}

func (c *Client) TripsForDriver(ctx context.Context, driverID string) ([]models.Trip, error) {
	return list[models.Trip](ctx, c, "/trips", url.Values{"driverId": {driverID}}, "trips")
}

func (c *Client) CreateTrip(ctx context.Context, req models.TripRequest) (*models.Trip, error) {
	return one[models.Trip](ctx, c, http.MethodPost, "/trips", req, "trip")
}

func (c *Client) UpdateTrip(ctx context.Context, id string, req models.TripRequest) (*models.Trip, error) {
	return one[models.Trip](ctx, c, http.MethodPut, "/trips"+seg(id), req, "trip")
}

func (c *Client) DeleteTrip(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/trips"+seg(id), nil)
}

func (c *Client) DriverTrips(ctx context.Context) ([]models.Trip, error) {
	return list[models.Trip](ctx, c, "/driver/trips", nil, "trips")
}

func (c *Client) Assignments(ctx context.Context) ([]models.Assignment, error) {
	return list[models.Assignment](ctx, c, "/assignments", nil, "assignments")
}

func (c *Client) CreateAssignment(ctx context.Context, req models.AssignmentRequest) (*models.Assignment, error) {
	return one[models.Assignment](ctx, c, http.MethodPost, "/assignments", req, "assignment")
}

// ExportReport fetches /reports/export/<kind>.<format> as raw JSON.
func (c *Client) ExportReport(ctx context.Context, kind, format string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Request(ctx, "/reports/export/"+url.PathEscape(kind+"."+format), RequestOptions{}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
