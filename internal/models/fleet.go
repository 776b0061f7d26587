package models

// Point is a named geographic location.
type Point struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Coordinates is a bare latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteStop is one stop along a route, in visiting order.
type RouteStop struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	EstimatedTime string  `json:"estimatedTime"`
	Order         int     `json:"order"`
}

// Bus status values.
const (
	BusActive      = "active"
	BusMaintenance = "Maintenance"
	BusInactive    = "inactive"
)

// Bus is a vehicle of the fleet.
type Bus struct {
	ID             string `json:"_id"`
	BusNumber      string `json:"BusNumber"`
	Capacity       int    `json:"capacity"`
	Driver         *Ref   `json:"assigned_driver_id,omitempty"`
	Route          *Ref   `json:"route_id,omitempty"`
	Status         string `json:"status"`
	AvailableSeats *int   `json:"availableSeats,omitempty"`
	IsAvailable    *bool  `json:"isAvailable,omitempty"`
}

// BusRequest is the payload for creating or updating a bus.
type BusRequest struct {
	BusNumber        string `json:"BusNumber"`
	Capacity         int    `json:"capacity"`
	AssignedDriverID string `json:"assigned_driver_id,omitempty"`
	RouteID          string `json:"route_id,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Route is a named path between two points with ordered stops.
type Route struct {
	ID            string      `json:"_id"`
	Name          string      `json:"name"`
	StartPoint    Point       `json:"start_point"`
	EndPoint      Point       `json:"end_point"`
	Stops         []RouteStop `json:"stops"`
	EstimatedTime string      `json:"estimated_time"`
}

// RouteRequest is the payload for creating or updating a route.
type RouteRequest struct {
	Name          string      `json:"name"`
	StartPoint    Point       `json:"start_point"`
	EndPoint      Point       `json:"end_point"`
	Stops         []RouteStop `json:"stops,omitempty"`
	EstimatedTime string      `json:"estimated_time,omitempty"`
}

// Attendance status values.
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// Attendance records whether a student rode a bus on a given day.
type Attendance struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BusID        string `json:"busId"`
	RouteID      string `json:"routeId"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	CheckInTime  string `json:"checkInTime,omitempty"`
	CheckOutTime string `json:"checkOutTime,omitempty"`
}

// AttendanceRequest is the payload for marking attendance.
type AttendanceRequest struct {
	StudentID string `json:"studentId"`
	BusID     string `json:"busId,omitempty"`
	RouteID   string `json:"routeId,omitempty"`
	Date      string `json:"date,omitempty"`
	Status    string `json:"status"`
}

// AttendanceStats is the loosely typed summary returned by /attendances/stats.
type AttendanceStats map[string]any

// Notification severities.
const (
	NotificationInfo    = "info"
	NotificationWarning = "warning"
	NotificationSuccess = "success"
	NotificationError   = "error"
)

// Notification is a message addressed to one user.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// NotificationRequest is the payload for sending a notification.
type NotificationRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Booking status values.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Booking is a seat reserved by a parent for a student on a given day.
type Booking struct {
	ID              string `json:"_id"`
	Student         Ref    `json:"studentId"`
	ParentID        string `json:"parentId"`
	Bus             Ref    `json:"busId"`
	Route           Ref    `json:"routeId"`
	Date            string `json:"date"`
	Status          string `json:"status"`
	PickupLocation  Point  `json:"pickupLocation"`
	DropoffLocation Point  `json:"dropoffLocation"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// BookingRequest is the payload for creating a booking.
type BookingRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	BusID           string `json:"busId" validate:"required"`
	RouteID         string `json:"routeId" validate:"required"`
	Date            string `json:"date" validate:"required"`
	PickupLocation  Point  `json:"pickupLocation"`
	DropoffLocation Point  `json:"dropoffLocation"`
	Notes           string `json:"notes,omitempty"`
}

// BusLocation is the last known position of a bus on an active trip.
type BusLocation struct {
	ID               string      `json:"_id"`
	Bus              Ref         `json:"busId"`
	Driver           Ref         `json:"driverId"`
	Route            Ref         `json:"routeId"`
	CurrentLocation  Coordinates `json:"currentLocation"`
	Speed            float64     `json:"speed"`
	Heading          float64     `json:"heading"`
	Status           string      `json:"status"`
	CurrentStop      *Point      `json:"currentStop,omitempty"`
	NextStop         *Point      `json:"nextStop,omitempty"`
	EstimatedArrival string      `json:"estimatedArrival,omitempty"`
	LastUpdate       string      `json:"lastUpdate"`
}

// Trip is one scheduled run of a bus along a route.
type Trip struct {
	ID        string `json:"_id"`
	Date      string `json:"date"`
	Driver    Ref    `json:"driverId"`
	Bus       Ref    `json:"busId"`
	Route     Ref    `json:"routeId"`
	Status    string `json:"status,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Students  []Ref  `json:"students,omitempty"`
}

// TripRequest is the payload for creating or updating a trip.
type TripRequest struct {
	Date      string   `json:"date"`
	DriverID  string   `json:"driverId"`
	BusID     string   `json:"busId"`
	RouteID   string   `json:"routeId"`
	Status    string   `json:"status,omitempty"`
	StartTime string   `json:"startTime,omitempty"`
	EndTime   string   `json:"endTime,omitempty"`
	Students  []string `json:"students,omitempty"`
}

// Assignment binds a driver and a bus to a route for one day.
type Assignment struct {
	ID     string `json:"_id"`
	Date   string `json:"date"`
	Driver Ref    `json:"driverId"`
	Bus    Ref    `json:"busId"`
	Route  Ref    `json:"routeId"`
}

// AssignmentRequest is the payload for creating an assignment.
type AssignmentRequest struct {
	Date     string `json:"date"`
	DriverID string `json:"driverId"`
	BusID    string `json:"busId"`
	RouteID  string `json:"routeId"`
}
