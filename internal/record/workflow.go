package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/metrics"
)

// FollowUpReason is the reason stamped on chained follow-up appointments.
const FollowUpReason = "Follow-up"

const (
	EventRecordCreated      = "RECORD_CREATED"
	EventFollowUpScheduled  = "FOLLOW_UP_SCHEDULED"
	EventFollowUpNotCreated = "FOLLOW_UP_FAILED"
)

type Store interface {
	CreateRecord(ctx context.Context, r ClinicalRecord) (*ClinicalRecord, error)
	UpdateRecord(ctx context.Context, id string, r ClinicalRecord) (*ClinicalRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

type PetSource interface {
	GetPet(ctx context.Context, id string) (*Pet, error)
}

type PractitionerSource interface {
	GetPractitioner(ctx context.Context, id string) (*appointment.Practitioner, error)
}

type SessionSource interface {
	CurrentUser(ctx context.Context) (*appointment.Actor, error)
}

type AppointmentCreator interface {
	Create(ctx context.Context, actor appointment.Actor, draft appointment.Draft) (*appointment.Appointment, error)
}

// MissingLinkageError means a follow-up could not be chained because the
// owner or the clinic could not be resolved.
type MissingLinkageError struct {
	Missing string
	Err     error
}

func (e *MissingLinkageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("follow-up needs %s: %v", e.Missing, e.Err)
	}
	return fmt.Sprintf("follow-up needs %s", e.Missing)
}

func (e *MissingLinkageError) Unwrap() error {
	return e.Err
}

type WorkflowConfig struct {
	Records       Store
	Pets          PetSource
	Practitioners PractitionerSource
	Session       SessionSource
	Appointments  AppointmentCreator
	Journal       appointment.Journal
	Metrics       *metrics.SchedulingMetrics
	Logger        zerolog.Logger
}

// Workflow creates clinical records and chains the optional follow-up
// appointment. The record is never rolled back when the follow-up fails.
type Workflow struct {
	records       Store
	pets          PetSource
	practitioners PractitionerSource
	session       SessionSource
	appointments  AppointmentCreator
	journal       appointment.Journal
	metrics       *metrics.SchedulingMetrics
	logger        zerolog.Logger
}

func NewWorkflow(cfg WorkflowConfig) *Workflow {
	return &Workflow{
		records:       cfg.Records,
		pets:          cfg.Pets,
		practitioners: cfg.Practitioners,
		session:       cfg.Session,
		appointments:  cfg.Appointments,
		journal:       cfg.Journal,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// Submit persists the record and, when followUpAt is set, books a follow-up
// for the pet's owner. A failure of the first write aborts everything; a
// failure of the second only degrades the outcome to a partial success.
func (w *Workflow) Submit(ctx context.Context, draft Draft, followUpAt *time.Time) Outcome {
	out := w.submit(ctx, draft, followUpAt)
	w.metrics.ObserveSubmission(string(out.Kind))
	return out
}

func (w *Workflow) submit(ctx context.Context, draft Draft, followUpAt *time.Time) Outcome {
	if err := validate(draft.Record); err != nil {
		return Failure(err)
	}

	created, err := w.records.CreateRecord(ctx, draft.Record)
	if err != nil {
		return Failure(fmt.Errorf("create clinical record: %w", err))
	}
	w.logEvent(ctx, EventRecordCreated, map[string]any{
		"record_id": created.ID,
		"pet_id":    created.PetID,
	})

	if followUpAt == nil || followUpAt.IsZero() {
		return FullSuccess(created, nil)
	}

	followUp, err := w.chainFollowUp(ctx, draft, created, *followUpAt)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("record_id", created.ID).
			Time("follow_up_at", *followUpAt).
			Msg("clinical record created but follow-up was not scheduled")
		w.logEvent(ctx, EventFollowUpNotCreated, map[string]any{
			"record_id": created.ID,
			"error":     err.Error(),
		})
		return PartialSuccess(created, err)
	}

	w.logEvent(ctx, EventFollowUpScheduled, map[string]any{
		"record_id":      created.ID,
		"appointment_id": followUp.ID,
	})
	return FullSuccess(created, followUp)
}

func (w *Workflow) chainFollowUp(ctx context.Context, draft Draft, rec *ClinicalRecord, at time.Time) (*appointment.Appointment, error) {
	ownerID, err := w.resolveOwner(ctx, draft)
	if err != nil {
		return nil, err
	}

	// the session user is both the acting user and the clinic fallback
	session, sessErr := w.session.CurrentUser(ctx)
	if sessErr == nil && session == nil {
		sessErr = errors.New("no session user")
	}

	clinicID := w.practitionerClinic(ctx, rec.PractitionerID)
	if clinicID == "" && sessErr == nil {
		clinicID = session.ClinicID
	}
	if strings.TrimSpace(clinicID) == "" {
		return nil, &MissingLinkageError{Missing: "clinic", Err: sessErr}
	}
	if sessErr != nil {
		return nil, fmt.Errorf("load session user: %w", sessErr)
	}

	followUp := appointment.Draft{
		ScheduledAt:    at,
		Reason:         FollowUpReason,
		Notes:          rec.Recommendations,
		ClientID:       ownerID,
		PetID:          rec.PetID,
		PractitionerID: rec.PractitionerID,
		ClinicID:       clinicID,
	}
	created, err := w.appointments.Create(ctx, *session, followUp)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (w *Workflow) resolveOwner(ctx context.Context, draft Draft) (string, error) {
	pet := draft.Pet
	if pet == nil || pet.ID != draft.Record.PetID {
		loaded, err := w.pets.GetPet(ctx, draft.Record.PetID)
		if err != nil {
			return "", &MissingLinkageError{Missing: "owner", Err: err}
		}
		pet = loaded
	}
	ownerID := strings.TrimSpace(pet.Owner.ID())
	if ownerID == "" {
		return "", &MissingLinkageError{Missing: "owner"}
	}
	return ownerID, nil
}

func (w *Workflow) practitionerClinic(ctx context.Context, practitionerID string) string {
	p, err := w.practitioners.GetPractitioner(ctx, practitionerID)
	if err != nil {
		w.logger.Debug().Err(err).Str("practitioner_id", practitionerID).Msg("practitioner clinic unavailable, falling back to session user")
		return ""
	}
	if p == nil {
		return ""
	}
	return p.ClinicID
}

// Update replaces record id with r.
func (w *Workflow) Update(ctx context.Context, id string, r ClinicalRecord) (*ClinicalRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &appointment.ValidationError{Field: "id"}
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	updated, err := w.records.UpdateRecord(ctx, id, r)
	if err != nil {
		return nil, fmt.Errorf("update clinical record: %w", err)
	}
	return updated, nil
}

func (w *Workflow) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &appointment.ValidationError{Field: "id"}
	}
	if err := w.records.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete clinical record: %w", err)
	}
	return nil
}

func validate(r ClinicalRecord) error {
	switch {
	case strings.TrimSpace(r.PetID) == "":
		return &appointment.ValidationError{Field: "pet_id"}
	case strings.TrimSpace(r.PractitionerID) == "":
		return &appointment.ValidationError{Field: "practitioner_id"}
	case r.ConsultedAt.IsZero():
		return &appointment.ValidationError{Field: "consulted_at"}
	}
	return nil
}

func (w *Workflow) logEvent(ctx context.Context, eventType string, payload map[string]any) {
	if w.journal == nil {
		return
	}
	ev := appointment.EventLog{
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := w.journal.InsertEvent(ctx, ev); err != nil {
		w.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
