package appointment

import (
	"time"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleFrontDesk    Role = "front_desk"
	RolePractitioner Role = "practitioner"
	RoleClient       Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFrontDesk, RolePractitioner, RoleClient:
		return true
	}
	return false
}

type Clinic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Practitioner struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClinicID string `json:"clinic_id"`
}

// Slot is one bookable time unit for a (clinic, date) pair.
type Slot struct {
	Timestamp        time.Time `json:"timestamp"`
	Free             bool      `json:"free"`
	PractitionerID   string    `json:"practitioner_id,omitempty"`
	PractitionerName string    `json:"practitioner_name,omitempty"`
}

type Appointment struct {
	ID             string    `json:"id,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Reason         string    `json:"reason,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Status         Status    `json:"status"`
	ClientID       string    `json:"client_id"`
	PetID          string    `json:"pet_id"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	ClinicID       string    `json:"clinic_id"`
}

// Draft is an appointment that has not been persisted yet.
type Draft struct {
	ScheduledAt    time.Time
	Reason         string
	Notes          string
	ClientID       string
	PetID          string
	PractitionerID string
	ClinicID       string
}

// Patch carries the fields an update may change. Nil fields are left alone.
type Patch struct {
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	ClientID       *string    `json:"client_id,omitempty"`
	PetID          *string    `json:"pet_id,omitempty"`
	PractitionerID *string    `json:"practitioner_id,omitempty"`
	ClinicID       *string    `json:"clinic_id,omitempty"`
	Status         *Status    `json:"status,omitempty"`
}

// Actor is the session user performing a write.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	ClinicID string `json:"clinic_id,omitempty"`
}

type EventLog struct {
	EventType     string
	AppointmentID string
	ClinicID      string
	Payload       map[string]any
	CreatedAt     time.Time
}

// Day returns midnight of t's calendar date in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date, read in
// a's location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
