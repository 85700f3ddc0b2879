package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/petclinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated      = "APPOINTMENT_CREATED"
	EventAppointmentUpdated      = "APPOINTMENT_UPDATED"
	EventAppointmentTransitioned = "APPOINTMENT_TRANSITIONED"
	EventAppointmentDeleted      = "APPOINTMENT_DELETED"
	EventSlotConflict            = "SLOT_CONFLICT"
)

type ServiceConfig struct {
	Store   Store
	Locker  redisclient.Locker
	Journal Journal
	Metrics *metrics.SchedulingMetrics
	Logger  zerolog.Logger
}

// Service creates, updates and transitions single appointments. Every rule
// is checked locally before the clinic API is called.
type Service struct {
	store       Store
	locker      redisclient.Locker
	journal     Journal
	metrics     *metrics.SchedulingMetrics
	logger      zerolog.Logger
	invalidator Invalidator
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:   cfg.Store,
		locker:  cfg.Locker,
		journal: cfg.Journal,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// SetInvalidator registers who gets told about availability changes.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// Create validates draft for the acting role and books it. When a slot lock
// is configured, concurrent bookings of the same clinic slot through this
// service fail fast with ErrSlotBeingBooked.
func (s *Service) Create(ctx context.Context, actor Actor, draft Draft) (*Appointment, error) {
	d, err := prepareCreate(actor, draft)
	if err != nil {
		return nil, err
	}

	appt := Appointment{
		ScheduledAt:    d.ScheduledAt,
		Reason:         d.Reason,
		Notes:          d.Notes,
		Status:         StatusScheduled,
		ClientID:       d.ClientID,
		PetID:          d.PetID,
		PractitionerID: d.PractitionerID,
		ClinicID:       d.ClinicID,
	}

	var created *Appointment
	book := func(ctx context.Context) error {
		a, err := s.store.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		created = a
		return nil
	}

	if s.locker != nil && appt.ClinicID != "" {
		err = s.locker.WithSlotLock(ctx, appt.ClinicID, appt.ScheduledAt, book)
	} else {
		err = book(ctx)
	}
	s.metrics.ObserveWrite("create", err)

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrSlotBeingBooked
		case IsSlotUnavailable(err):
			s.logEvent(ctx, "", appt.ClinicID, EventSlotConflict, map[string]any{
				"scheduled_at": appt.ScheduledAt,
				"actor_id":     actor.ID,
			})
			s.invalidate(ctx, appt.ClinicID, appt.ScheduledAt)
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, created.ClinicID, EventAppointmentCreated, map[string]any{
		"scheduled_at": created.ScheduledAt,
		"client_id":    created.ClientID,
		"pet_id":       created.PetID,
		"actor_id":     actor.ID,
		"actor_role":   actor.Role,
	})
	s.invalidate(ctx, created.ClinicID, created.ScheduledAt)

	return created, nil
}

// Update applies patch to appointment id. Status changes must go through
// Transition.
func (s *Service) Update(ctx context.Context, actor Actor, id string, patch Patch) (*Appointment, error) {
	if blank(id) {
		return nil, missing("id")
	}
	if !actor.Role.Valid() {
		return nil, ErrUnauthorized
	}
	if err := checkPatch(actor, patch); err != nil {
		return nil, err
	}
	if patch.ScheduledAt != nil {
		at := patch.ScheduledAt.Truncate(time.Minute)
		patch.ScheduledAt = &at
	}

	// the previous pair loses a booking when the appointment moves
	var before *Appointment
	if actor.Role == RoleClient || patch.ScheduledAt != nil || patch.ClinicID != nil {
		prev, err := s.store.GetAppointment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}
		before = prev
	}
	if actor.Role == RoleClient {
		if before.ClientID != actor.ID {
			return nil, fmt.Errorf("%w: appointment belongs to another client", ErrUnauthorized)
		}
		if patch.ClientID != nil && *patch.ClientID != actor.ID {
			return nil, fmt.Errorf("%w: clients cannot reassign appointments", ErrUnauthorized)
		}
	}

	updated, err := s.store.UpdateAppointment(ctx, id, patch)
	s.metrics.ObserveWrite("update", err)
	if err != nil {
		if IsSlotUnavailable(err) && patch.ScheduledAt != nil && before != nil {
			clinicID := before.ClinicID
			if patch.ClinicID != nil {
				clinicID = *patch.ClinicID
			}
			s.invalidate(ctx, clinicID, *patch.ScheduledAt)
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, updated.ClinicID, EventAppointmentUpdated, map[string]any{
		"actor_id": actor.ID,
	})
	if before != nil && (before.ClinicID != updated.ClinicID || !SameDay(before.ScheduledAt, updated.ScheduledAt)) {
		s.invalidate(ctx, before.ClinicID, before.ScheduledAt)
	}
	s.invalidate(ctx, updated.ClinicID, updated.ScheduledAt)

	return updated, nil
}

// Transition moves appointment id to target after the status machine and
// the ownership rule for clients have approved it.
func (s *Service) Transition(ctx context.Context, actor Actor, id string, target Status) (*Appointment, error) {
	if blank(id) {
		return nil, missing("id")
	}

	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := CheckTransition(current.Status, target, actor.Role); err != nil {
		return nil, err
	}
	if actor.Role == RoleClient && current.ClientID != actor.ID {
		return nil, fmt.Errorf("%w: appointment belongs to another client", ErrUnauthorized)
	}

	updated, err := s.store.TransitionAppointment(ctx, id, target)
	s.metrics.ObserveWrite("transition", err)
	if err != nil {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, updated.ClinicID, EventAppointmentTransitioned, map[string]any{
		"from":       current.Status,
		"to":         updated.Status,
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
	})
	s.invalidate(ctx, updated.ClinicID, updated.ScheduledAt)

	return updated, nil
}

// Delete removes appointment id. Only administrative roles may delete.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	if blank(id) {
		return missing("id")
	}
	if !deleteRoles[actor.Role] {
		return ErrUnauthorized
	}

	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	err = s.store.DeleteAppointment(ctx, id)
	s.metrics.ObserveWrite("delete", err)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, current.ClinicID, EventAppointmentDeleted, map[string]any{
		"actor_id": actor.ID,
	})
	s.invalidate(ctx, current.ClinicID, current.ScheduledAt)
	return nil
}

func (s *Service) invalidate(ctx context.Context, clinicID string, at time.Time) {
	if s.invalidator == nil || clinicID == "" || at.IsZero() {
		return
	}
	s.invalidator.Invalidate(ctx, clinicID, at)
}

func (s *Service) logEvent(ctx context.Context, appointmentID, clinicID, eventType string, payload map[string]any) {
	if s.journal == nil {
		return
	}
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		ClinicID:      clinicID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	if err := s.journal.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID).
			Msg("failed to insert event log")
	}
}
