package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/metrics"
)

// Flow decides where the practitioner sits in the selection chain.
type Flow string

const (
	// FlowPractitionerFirst: clinic -> practitioner -> date -> slot.
	FlowPractitionerFirst Flow = "practitioner_first"
	// FlowDateFirst: clinic -> date -> slot, practitioner optional at any point.
	FlowDateFirst Flow = "date_first"
)

func (f Flow) Valid() bool {
	return f == FlowPractitionerFirst || f == FlowDateFirst
}

const HintSelectClinicFirst = "select clinic or practitioner first"

// Selection is the currently valid (clinic, practitioner, date, slot) tuple.
type Selection struct {
	ClinicID       string    `json:"clinic_id,omitempty"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	Date           time.Time `json:"date,omitempty"`
	Slot           *Slot     `json:"slot,omitempty"`
}

// Complete reports whether the selection can be booked.
func (s Selection) Complete() bool {
	return s.ClinicID != "" && s.Slot != nil
}

// Draft turns a complete selection into an appointment draft.
func (s Selection) Draft(clientID, petID, reason, notes string) Draft {
	d := Draft{
		Reason:         reason,
		Notes:          notes,
		ClientID:       clientID,
		PetID:          petID,
		PractitionerID: s.PractitionerID,
		ClinicID:       s.ClinicID,
	}
	if s.Slot != nil {
		d.ScheduledAt = s.Slot.Timestamp
	}
	return d
}

// Snapshot is the full resolver view handed to the UI.
type Snapshot struct {
	Flow                Flow           `json:"flow"`
	Selection           Selection      `json:"selection"`
	PractitionerOptions []Practitioner `json:"practitioner_options"`
	SlotOptions         []Slot         `json:"slot_options"`
	Hint                string         `json:"hint,omitempty"`
	FetchError          string         `json:"fetch_error,omitempty"`
	Loading             bool           `json:"loading"`
	Generation          uint64         `json:"generation"`
}

type ResolverConfig struct {
	Slots         *SlotClient
	Flow          Flow
	Clinics       []Clinic
	Practitioners []Practitioner
	Metrics       *metrics.SchedulingMetrics
	Logger        zerolog.Logger
}

// Resolver keeps the cascading clinic/practitioner/date/slot selection
// consistent. Every upstream change bumps the generation; a slot fetch whose
// generation is stale when it returns is dropped.
type Resolver struct {
	mu      sync.Mutex
	slots   *SlotClient
	metrics *metrics.SchedulingMetrics
	logger  zerolog.Logger

	flow          Flow
	clinics       []Clinic
	practitioners []Practitioner

	clinicID       string
	practitionerID string
	date           time.Time
	slot           *Slot

	practitionerOptions []Practitioner
	slotOptions         []Slot
	hint                string
	fetchErr            error
	generation          uint64
	pending             bool
}

func NewResolver(cfg ResolverConfig) *Resolver {
	flow := cfg.Flow
	if !flow.Valid() {
		flow = FlowDateFirst
	}
	r := &Resolver{
		slots:         cfg.Slots,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		flow:          flow,
		clinics:       append([]Clinic(nil), cfg.Clinics...),
		practitioners: append([]Practitioner(nil), cfg.Practitioners...),
	}
	r.practitionerOptions = r.filterPractitioners("")
	return r
}

// LoadResolver fetches the clinic and practitioner collections once and
// builds a resolver over them.
func LoadResolver(ctx context.Context, dir Directory, cfg ResolverConfig) (*Resolver, error) {
	clinics, err := dir.FetchClinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	practitioners, err := dir.FetchPractitioners(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	cfg.Clinics = clinics
	cfg.Practitioners = practitioners
	return NewResolver(cfg), nil
}

// SelectClinic replaces the clinic and clears practitioner, date and slot in
// the same update. An empty id deselects the clinic.
func (r *Resolver) SelectClinic(clinicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clinicID != "" && !r.knownClinic(clinicID) {
		return fmt.Errorf("%w: %s", ErrUnknownClinic, clinicID)
	}

	r.generation++
	r.clinicID = clinicID
	r.practitionerID = ""
	r.date = time.Time{}
	r.slot = nil
	r.slotOptions = nil
	r.hint = ""
	r.fetchErr = nil
	r.pending = false
	r.practitionerOptions = r.filterPractitioners(clinicID)
	return nil
}

// SelectPractitioner replaces the practitioner. In the practitioner-first
// flow the date and slot are cleared; in the date-first flow the slot is
// cleared and, when a date is already chosen, slots are fetched again for
// the practitioner's clinic.
func (r *Resolver) SelectPractitioner(ctx context.Context, practitionerID string) error {
	r.mu.Lock()

	if practitionerID != "" {
		if _, ok := findPractitioner(r.practitionerOptions, practitionerID); !ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownPractitioner, practitionerID)
		}
	}

	r.practitionerID = practitionerID
	r.slot = nil

	if r.flow == FlowPractitionerFirst {
		r.date = time.Time{}
	}
	if r.date.IsZero() {
		r.generation++
		r.slotOptions = nil
		r.hint = ""
		r.fetchErr = nil
		r.pending = false
		r.mu.Unlock()
		return nil
	}

	date := r.date
	gen, clinicID, ok := r.beginFetchLocked()
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.runFetch(ctx, gen, clinicID, date, nil)
}

// SelectDate replaces the date, clears the slot and triggers exactly one
// slot fetch for the selected clinic. Without a clinic the fetch is skipped
// and the hint asks for one.
func (r *Resolver) SelectDate(ctx context.Context, date time.Time) error {
	r.mu.Lock()
	if date.IsZero() {
		r.generation++
		r.date = time.Time{}
		r.slot = nil
		r.slotOptions = nil
		r.hint = ""
		r.fetchErr = nil
		r.pending = false
		r.mu.Unlock()
		return nil
	}

	r.date = Day(date)
	r.slot = nil
	day := r.date
	gen, clinicID, ok := r.beginFetchLocked()
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.runFetch(ctx, gen, clinicID, day, nil)
}

// SelectSlot picks a slot from the current options. Taken or unknown slots
// are rejected and leave the selection untouched.
func (r *Resolver) SelectSlot(at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := findSlot(r.slotOptions, at)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotOffered, at.Format(time.RFC3339))
	}
	if !s.Free {
		return fmt.Errorf("%w: %s", ErrSlotTaken, at.Format(time.RFC3339))
	}
	r.slot = &s
	return nil
}

// Refresh re-fetches slots for the current clinic and date, keeping the
// selected slot only if it is still offered and free. When the fetch fails
// the selected slot is kept.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.date.IsZero() {
		r.mu.Unlock()
		return nil
	}
	keep := r.slot
	day := r.date
	r.slot = nil
	gen, clinicID, ok := r.beginFetchLocked()
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.runFetch(ctx, gen, clinicID, day, keep)
}

// Invalidate refreshes the slot options when a write touched the pair the
// resolver is currently showing.
func (r *Resolver) Invalidate(ctx context.Context, clinicID string, date time.Time) {
	r.mu.Lock()
	match := !r.date.IsZero() && SameDay(r.date, date) && r.effectiveClinicLocked() == clinicID
	r.mu.Unlock()
	if !match {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Str("clinic_id", clinicID).Msg("refresh slots after write")
	}
}

// Selection returns the current tuple. The practitioner falls back to the one
// pre-assigned on the chosen slot.
func (r *Resolver) Selection() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectionLocked()
}

func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Flow:                r.flow,
		Selection:           r.selectionLocked(),
		PractitionerOptions: append([]Practitioner{}, r.practitionerOptions...),
		Hint:                r.hint,
		Loading:             r.pending,
		Generation:          r.generation,
	}
	if r.slotOptions != nil {
		snap.SlotOptions = append([]Slot{}, r.slotOptions...)
	}
	if r.fetchErr != nil {
		snap.FetchError = r.fetchErr.Error()
	}
	return snap
}

func (r *Resolver) selectionLocked() Selection {
	sel := Selection{
		ClinicID:       r.effectiveClinicLocked(),
		PractitionerID: r.practitionerID,
		Date:           r.date,
	}
	if r.slot != nil {
		s := *r.slot
		sel.Slot = &s
		if sel.PractitionerID == "" {
			sel.PractitionerID = s.PractitionerID
		}
	}
	return sel
}

// beginFetchLocked starts a new generation for the current date. It reports
// false when no clinic can be resolved, in which case the options are set
// empty and the hint is raised.
func (r *Resolver) beginFetchLocked() (uint64, string, bool) {
	r.generation++
	r.slotOptions = nil
	r.fetchErr = nil
	r.hint = ""

	clinicID := r.effectiveClinicLocked()
	if clinicID == "" {
		r.slotOptions = []Slot{}
		r.hint = HintSelectClinicFirst
		r.pending = false
		return r.generation, "", false
	}
	r.pending = true
	return r.generation, clinicID, true
}

func (r *Resolver) runFetch(ctx context.Context, gen uint64, clinicID string, day time.Time, keep *Slot) error {
	slots, err := r.slots.FetchSlots(ctx, clinicID, day)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		r.metrics.ObserveStaleResult()
		r.logger.Debug().
			Uint64("generation", gen).
			Uint64("current", r.generation).
			Str("clinic_id", clinicID).
			Msg("discarding stale slot result")
		return nil
	}

	r.pending = false
	if err != nil {
		r.fetchErr = err
		r.slotOptions = nil
		// a failed refresh keeps the selected slot
		r.slot = keep
		return err
	}

	r.slotOptions = slots
	if keep != nil {
		if s, ok := findSlot(slots, keep.Timestamp); ok && s.Free {
			r.slot = &s
		}
	}
	return nil
}

func (r *Resolver) effectiveClinicLocked() string {
	if r.clinicID != "" {
		return r.clinicID
	}
	if r.practitionerID != "" {
		if p, ok := findPractitioner(r.practitioners, r.practitionerID); ok {
			return p.ClinicID
		}
	}
	return ""
}

func (r *Resolver) knownClinic(id string) bool {
	for _, c := range r.clinics {
		if c.ID == id {
			return true
		}
	}
	return false
}

// filterPractitioners returns the practitioners of clinicID, or all of them
// when no clinic is chosen.
func (r *Resolver) filterPractitioners(clinicID string) []Practitioner {
	out := make([]Practitioner, 0, len(r.practitioners))
	for _, p := range r.practitioners {
		if clinicID == "" || p.ClinicID == clinicID {
			out = append(out, p)
		}
	}
	return out
}

func findPractitioner(list []Practitioner, id string) (Practitioner, bool) {
	for _, p := range list {
		if p.ID == id {
			return p, true
		}
	}
	return Practitioner{}, false
}

func findSlot(list []Slot, at time.Time) (Slot, bool) {
	at = at.Truncate(time.Minute)
	for _, s := range list {
		if s.Timestamp.Equal(at) {
			return s, true
		}
	}
	return Slot{}, false
}
