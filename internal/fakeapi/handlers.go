package fakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Handler returns the chi router serving the remote clinic API routes.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.injectFailures)

	r.Get("/clinics", b.listClinics)
	r.Get("/clinics/{id}/slots", b.listSlots)
	r.Get("/practitioners", b.listPractitioners)
	r.Get("/practitioners/{id}", b.getPractitioner)
	r.Get("/pets", b.listPets)
	r.Get("/pets/{id}", b.getPet)

	r.Post("/appointments", b.createAppointment)
	r.Get("/appointments/{id}", b.getAppointment)
	r.Patch("/appointments/{id}", b.updateAppointment)
	r.Delete("/appointments/{id}", b.deleteAppointment)
	r.Post("/appointments/{id}/status", b.transitionAppointment)

	r.Post("/records", b.createRecord)
	r.Get("/records", b.listRecords)
	r.Patch("/records/{id}", b.updateRecord)
	r.Delete("/records/{id}", b.deleteRecord)

	r.Get("/me", b.me)

	return r
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		prefix := r.Method + " " + firstSegment(r.URL.Path)

		b.mu.Lock()
		f, ok := b.failures[route]
		if ok {
			delete(b.failures, route)
		} else if f, ok = b.failures[prefix]; ok {
			delete(b.failures, prefix)
		}
		b.mu.Unlock()

		if ok {
			writeError(w, f.status, f.body, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func firstSegment(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	return "/" + parts[0]
}

func (b *Backend) listClinics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Clinics())
}

func (b *Backend) listSlots(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "id")
	date, err := time.ParseInLocation(time.DateOnly, r.URL.Query().Get("date"), b.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	b.mu.Lock()
	known := b.clinicExistsLocked(clinicID)
	delay := b.slotDelays[clinicID]
	b.mu.Unlock()
	if !known {
		writeError(w, http.StatusNotFound, "clinic_not_found", clinicID)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	// availability is read after the delay so a slow response reflects
	// bookings made meanwhile
	b.mu.Lock()
	slots := b.slotsLocked(clinicID, date)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, slots)
}

func (b *Backend) listPractitioners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Practitioners(r.URL.Query().Get("clinic_id")))
}

func (b *Backend) getPractitioner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, p := range b.Practitioners("") {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "practitioner_not_found", id)
}

func (b *Backend) listPets(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	out := []record.Pet{}
	for _, p := range b.Pets() {
		if ownerID == "" || p.Owner.ID() == ownerID {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getPet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	row, ok := b.pets[id]
	var p record.Pet
	if ok {
		p = b.servedPetLocked(row)
	}
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "pet_not_found", id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) createAppointment(w http.ResponseWriter, r *http.Request) {
	var a appointment.Appointment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	if a.ClientID == "" || a.PetID == "" || a.ClinicID == "" || a.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "missing_fields", "scheduled_at, client_id, pet_id and clinic_id are required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clinicExistsLocked(a.ClinicID) {
		writeError(w, http.StatusNotFound, "clinic_not_found", a.ClinicID)
		return
	}
	if b.takenLocked(a.ClinicID, a.ScheduledAt, "") {
		writeError(w, http.StatusConflict, "slot_taken", a.ScheduledAt.Format(time.RFC3339))
		return
	}

	a.ID = uuid.NewString()
	if a.Status == "" {
		a.Status = appointment.StatusScheduled
	}
	b.appointments[a.ID] = a
	writeJSON(w, http.StatusCreated, a)
}

func (b *Backend) getAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	a, ok := b.appointments[id]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "appointment_not_found", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (b *Backend) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p appointment.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.appointments[id]
	if !ok {
		writeError(w, http.StatusNotFound, "appointment_not_found", id)
		return
	}
	applyPatch(&a, p)
	if b.takenLocked(a.ClinicID, a.ScheduledAt, id) {
		writeError(w, http.StatusConflict, "slot_taken", a.ScheduledAt.Format(time.RFC3339))
		return
	}
	b.appointments[id] = a
	writeJSON(w, http.StatusOK, a)
}

func applyPatch(a *appointment.Appointment, p appointment.Patch) {
	if p.ScheduledAt != nil {
		a.ScheduledAt = *p.ScheduledAt
	}
	if p.Reason != nil {
		a.Reason = *p.Reason
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.ClientID != nil {
		a.ClientID = *p.ClientID
	}
	if p.PetID != nil {
		a.PetID = *p.PetID
	}
	if p.PractitionerID != nil {
		a.PractitionerID = *p.PractitionerID
	}
	if p.ClinicID != nil {
		a.ClinicID = *p.ClinicID
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
}

func (b *Backend) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.appointments[id]
	delete(b.appointments, id)
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "appointment_not_found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) transitionAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Status appointment.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "status is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.appointments[id]
	if !ok {
		writeError(w, http.StatusNotFound, "appointment_not_found", id)
		return
	}
	a.Status = body.Status
	b.appointments[id] = a
	writeJSON(w, http.StatusOK, a)
}

func (b *Backend) createRecord(w http.ResponseWriter, r *http.Request) {
	var rec record.ClinicalRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	if rec.PetID == "" || rec.PractitionerID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "pet_id and practitioner_id are required")
		return
	}

	b.mu.Lock()
	rec.ID = uuid.NewString()
	b.records[rec.ID] = rec
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, rec)
}

func (b *Backend) listRecords(w http.ResponseWriter, r *http.Request) {
	petID := r.URL.Query().Get("pet_id")
	out := []record.ClinicalRecord{}
	for _, rec := range b.Records() {
		if petID == "" || rec.PetID == petID {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) updateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rec record.ClinicalRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[id]; !ok {
		writeError(w, http.StatusNotFound, "record_not_found", id)
		return
	}
	rec.ID = id
	b.records[id] = rec
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.records[id]
	delete(b.records, id)
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "record_not_found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	actor, ok := b.users[token]
	if !ok && b.current != nil {
		actor, ok = *b.current, true
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no session user")
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}
