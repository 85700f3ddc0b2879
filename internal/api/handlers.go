package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/journal"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

// UserSource resolves the session user of the inbound request.
type UserSource interface {
	CurrentUser(ctx context.Context) (*appointment.Actor, error)
}

// EventLister reads back the scheduling journal of one appointment.
type EventLister interface {
	ListByAppointment(ctx context.Context, appointmentID string, limit int) ([]journal.Entry, error)
}

// RecordLister serves a pet's clinical history.
type RecordLister interface {
	ListRecords(ctx context.Context, petID string) ([]record.ClinicalRecord, error)
}

type handlers struct {
	sessions     *SessionRegistry
	appointments *appointment.Service
	records      *record.Workflow
	history      RecordLister
	events       EventLister
	users        UserSource
	validate     *validator.Validate
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

func (h *handlers) actor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	u, err := h.users.CurrentUser(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return appointment.Actor{}, false
	}
	if u == nil || !u.Role.Valid() {
		writeError(w, http.StatusForbidden, "unauthorized", "session user has no usable role")
		return appointment.Actor{}, false
	}
	return *u, true
}

// -- selection sessions --

func (h *handlers) openSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeServiceError(w, err)
		return
	}

	id, res, err := h.sessions.Open(r.Context(), req.Flow)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id, Snapshot: res.Snapshot()})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, Snapshot: res.Snapshot()})
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// selectHandler decodes req, applies it to the session's resolver and
// answers with the resulting snapshot.
func selectHandler[T any](h *handlers, apply func(ctx context.Context, res *appointment.Resolver, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := h.sessions.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var req T
		if !h.decode(w, r, &req) {
			return
		}
		if err := apply(r.Context(), res, req); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{ID: id, Snapshot: res.Snapshot()})
	}
}

func applyClinic(_ context.Context, res *appointment.Resolver, req SelectClinicRequest) error {
	return res.SelectClinic(req.ClinicID)
}

func applyPractitioner(ctx context.Context, res *appointment.Resolver, req SelectPractitionerRequest) error {
	return res.SelectPractitioner(ctx, req.PractitionerID)
}

func applyDate(ctx context.Context, res *appointment.Resolver, req SelectDateRequest) error {
	if req.Date == "" {
		return res.SelectDate(ctx, time.Time{})
	}
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return &appointment.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return res.SelectDate(ctx, day)
}

func applySlot(_ context.Context, res *appointment.Resolver, req SelectSlotRequest) error {
	return res.SelectSlot(req.Timestamp)
}

// -- appointments --

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	draft := appointment.Draft{
		ScheduledAt:    req.ScheduledAt,
		Reason:         req.Reason,
		Notes:          req.Notes,
		ClientID:       req.ClientID,
		PetID:          req.PetID,
		PractitionerID: req.PractitionerID,
		ClinicID:       req.ClinicID,
	}
	if req.SessionID != "" {
		res, err := h.sessions.Get(r.Context(), req.SessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		sel := res.Selection()
		if !sel.Complete() {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "validation_failed",
				Details: "selection has no slot yet",
				Field:   "scheduled_at",
			})
			return
		}
		draft = sel.Draft(req.ClientID, req.PetID, req.Reason, req.Notes)
	}

	appt, err := h.appointments.Create(r.Context(), actor, draft)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var patch appointment.Patch
	if !h.decode(w, r, &patch) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	appt, err := h.appointments.Update(r.Context(), actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.appointments.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) transitionAppointment(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	appt, err := h.appointments.Transition(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "scheduling journal is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(w, &appointment.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.events.ListByAppointment(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// -- clinical records --

func (h *handlers) submitRecord(w http.ResponseWriter, r *http.Request) {
	var req SubmitRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	out := h.records.Submit(r.Context(), req.draft(), req.FollowUpAt)
	if out.Kind == record.KindFailure {
		writeServiceError(w, out.Err)
		return
	}

	resp := RecordOutcomeResponse{
		Outcome:  out.Kind,
		Message:  out.Message(),
		Record:   out.Record,
		FollowUp: out.FollowUp,
	}
	if out.FollowUpErr != nil {
		resp.FollowUpError = out.FollowUpErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) updateRecord(w http.ResponseWriter, r *http.Request) {
	var req SubmitRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.records.Update(r.Context(), chi.URLParam(r, "id"), req.draft().Record)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	petID := r.URL.Query().Get("pet_id")
	if petID == "" {
		writeServiceError(w, &appointment.ValidationError{Field: "pet_id"})
		return
	}
	recs, err := h.history.ListRecords(r.Context(), petID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []record.ClinicalRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
