package appointment

import (
	"context"
	"time"
)

// SlotSource is the clinic API query behind the slot client.
type SlotSource interface {
	FetchSlots(ctx context.Context, clinicID string, date time.Time) ([]Slot, error)
}

// Directory serves the read-only collections the resolver filters.
type Directory interface {
	FetchClinics(ctx context.Context) ([]Clinic, error)
	// FetchPractitioners returns every practitioner when clinicID is empty.
	FetchPractitioners(ctx context.Context, clinicID string) ([]Practitioner, error)
}

// Store contains all remote appointment writes needed by the service.
type Store interface {
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id string, p Patch) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	TransitionAppointment(ctx context.Context, id string, to Status) (*Appointment, error)
}

// Journal records scheduling events. Failures never abort a write.
type Journal interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Invalidator is told when a write changed availability for a (clinic, date) pair.
type Invalidator interface {
	Invalidate(ctx context.Context, clinicID string, date time.Time)
}
