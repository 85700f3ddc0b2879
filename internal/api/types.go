package api

import (
	"time"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

type OpenSessionRequest struct {
	Flow appointment.Flow `json:"flow" validate:"omitempty,oneof=practitioner_first date_first"`
}

type SessionResponse struct {
	ID string `json:"id"`
	appointment.Snapshot
}

type SelectClinicRequest struct {
	ClinicID string `json:"clinic_id"`
}

type SelectPractitionerRequest struct {
	PractitionerID string `json:"practitioner_id"`
}

// SelectDateRequest takes a calendar date (YYYY-MM-DD); empty clears it.
type SelectDateRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type SelectSlotRequest struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// CreateAppointmentRequest books either the slot picked in a selection
// session or the explicit fields. Session values win when both are set.
type CreateAppointmentRequest struct {
	SessionID      string    `json:"session_id,omitempty" validate:"omitempty,uuid"`
	ScheduledAt    time.Time `json:"scheduled_at,omitempty"`
	ClinicID       string    `json:"clinic_id,omitempty"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	ClientID       string    `json:"client_id"`
	PetID          string    `json:"pet_id"`
	Reason         string    `json:"reason,omitempty" validate:"max=500"`
	Notes          string    `json:"notes,omitempty" validate:"max=2000"`
}

type TransitionRequest struct {
	Status appointment.Status `json:"status" validate:"required"`
}

type SubmitRecordRequest struct {
	ConsultedAt     time.Time     `json:"consulted_at"`
	Symptoms        string        `json:"symptoms,omitempty"`
	Diagnosis       string        `json:"diagnosis,omitempty"`
	Treatment       string        `json:"treatment,omitempty"`
	Recommendations string        `json:"recommendations,omitempty"`
	Vitals          record.Vitals `json:"vitals"`
	PetID           string        `json:"pet_id"`
	PractitionerID  string        `json:"practitioner_id"`
	AppointmentID   string        `json:"appointment_id,omitempty"`
	FollowUpAt      *time.Time    `json:"follow_up_at,omitempty"`
}

func (r SubmitRecordRequest) draft() record.Draft {
	return record.Draft{Record: record.ClinicalRecord{
		ConsultedAt:     r.ConsultedAt,
		Symptoms:        r.Symptoms,
		Diagnosis:       r.Diagnosis,
		Treatment:       r.Treatment,
		Recommendations: r.Recommendations,
		Vitals:          r.Vitals,
		PetID:           r.PetID,
		PractitionerID:  r.PractitionerID,
		AppointmentID:   r.AppointmentID,
	}}
}

type RecordOutcomeResponse struct {
	Outcome       record.OutcomeKind       `json:"outcome"`
	Message       string                   `json:"message"`
	Record        *record.ClinicalRecord   `json:"record,omitempty"`
	FollowUp      *appointment.Appointment `json:"follow_up,omitempty"`
	FollowUpError string                   `json:"follow_up_error,omitempty"`
}

type ErrorResponse struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	Field        string `json:"field,omitempty"`
	RefetchSlots bool   `json:"refetch_slots,omitempty"`
}
