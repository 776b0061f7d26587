// Package models defines the records exchanged with the SchoolBus backend.
package models

import (
	"encoding/json"
	"strings"
)

// Role identifies what a user is allowed to do in the application.
type Role string

const (
	// RoleParent books rides and follows their children's attendance.
	RoleParent Role = "parent"
	// RoleDriver runs trips and marks attendance on board.
	RoleDriver Role = "driver"
	// RoleAdmin manages buses, routes, drivers and assignments.
	RoleAdmin Role = "admin"
	// RoleManager has read access to fleet-wide reports.
	RoleManager Role = "manager"
)

// User is the authenticated identity bound to a session.
type User struct {
	// ID is the backend identifier of the user.
	ID string `json:"id"`
	// Email is the login address.
	Email string `json:"email"`
	// Name is the display name.
	Name string `json:"name"`
	// Role selects which screens the user sees.
	Role Role `json:"role"`
	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty"`
	// Avatar is an optional profile image URL.
	Avatar string `json:"avatar,omitempty"`
	// Children lists the students linked to a parent account.
	Children []Child `json:"children,omitempty"`
}

// UnmarshalJSON accepts both "id" and the Mongo-style "_id".
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var p struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*u = User(p.plain)
	if u.ID == "" {
		u.ID = p.MongoID
	}
	return nil
}

// UserPatch carries a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Name     *string
	Email    *string
	Phone    *string
	Avatar   *string
	Children []Child
}

// Merge returns a copy of u with the non-nil fields of p applied.
func (u User) Merge(p UserPatch) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Children != nil {
		u.Children = append([]Child(nil), p.Children...)
	}
	return u
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	if u.Children != nil {
		u.Children = append([]Child(nil), u.Children...)
	}
	return u
}

// Child is a student linked to a parent account.
type Child struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Grade   string `json:"grade"`
	School  string `json:"school"`
	BusID   string `json:"busId,omitempty"`
	RouteID string `json:"routeId,omitempty"`
}

// UnmarshalJSON accepts both "id" and "_id".
func (c *Child) UnmarshalJSON(b []byte) error {
	type plain Child
	var p struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Child(p.plain)
	if c.ID == "" {
		c.ID = p.MongoID
	}
	return nil
}

// Person is a user as listed by the admin endpoints (drivers, all users).
type Person struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// FullName joins the first and last name.
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Ref points at another record. The backend sometimes populates the
// referenced document and sometimes sends only its id string; both decode
// into a Ref.
type Ref struct {
	ID         string `json:"_id"`
	Name       string `json:"name,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	BusNumber  string `json:"BusNumber,omitempty"`
	Capacity   int    `json:"capacity,omitempty"`
	StartPoint *Point `json:"start_point,omitempty"`
	EndPoint   *Point `json:"end_point,omitempty"`
}

// UnmarshalJSON decodes either a bare id string or a populated object.
func (r *Ref) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		*r = Ref{}
		return json.Unmarshal(b, &r.ID)
	}
	type plain Ref
	var p struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Ref(p.plain)
	if r.ID == "" {
		r.ID = p.AltID
	}
	return nil
}

// Label returns the most descriptive name available for the reference.
func (r Ref) Label() string {
	switch {
	case r.BusNumber != "":
		return r.BusNumber
	case r.Name != "":
		return r.Name
	case r.FirstName != "" || r.LastName != "":
		return strings.TrimSpace(r.FirstName + " " + r.LastName)
	default:
		return r.ID
	}
}
