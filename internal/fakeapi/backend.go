// Package fakeapi is an in-memory stand-in for the remote clinic API. It
// serves the same routes the clinicapi client calls and is used by tests
// and by cmd/fake-backend for local development.
package fakeapi

import (
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

// Options controls the generated slot grid.
type Options struct {
	OpenHour  int
	CloseHour int
	Step      time.Duration
	Location  *time.Location
}

func (o Options) withDefaults() Options {
	if o.OpenHour == 0 && o.CloseHour == 0 {
		o.OpenHour, o.CloseHour = 9, 17
	}
	if o.Step <= 0 {
		o.Step = 30 * time.Minute
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type failure struct {
	status int
	body   string
}

type Backend struct {
	opts Options

	mu            sync.Mutex
	clinics       []appointment.Clinic
	practitioners []appointment.Practitioner
	pets          map[string]petRow
	appointments  map[string]appointment.Appointment
	records       map[string]record.ClinicalRecord
	users         map[string]appointment.Actor
	current       *appointment.Actor
	failures      map[string]failure
	slotDelays    map[string]time.Duration
}

// petRow keeps the owner shape a pet is served with.
type petRow struct {
	pet    record.Pet
	nested bool
}

func New(opts Options) *Backend {
	return &Backend{
		opts:         opts.withDefaults(),
		pets:         make(map[string]petRow),
		appointments: make(map[string]appointment.Appointment),
		records:      make(map[string]record.ClinicalRecord),
		users:        make(map[string]appointment.Actor),
		failures:     make(map[string]failure),
		slotDelays:   make(map[string]time.Duration),
	}
}

// Seed fills the backend with generated clinics, practitioners and pets.
// The same seed always yields the same data.
func (b *Backend) Seed(seed uint64, clinics, practitionersPerClinic, pets int) {
	f := gofakeit.New(seed)

	for i := 0; i < clinics; i++ {
		c := b.AddClinic(f.Company() + " Veterinary")
		for j := 0; j < practitionersPerClinic; j++ {
			b.AddPractitioner(c.ID, "Dr. "+f.Name())
		}
	}

	for i := 0; i < pets; i++ {
		owner := record.Owner{ID: uuid.NewString(), Name: f.Name(), Email: f.Email()}
		// alternate shapes so clients see both
		b.AddPet(f.PetName(), owner, i%2 == 0)
	}
}

func (b *Backend) AddClinic(name string) appointment.Clinic {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := appointment.Clinic{ID: uuid.NewString(), Name: name}
	b.clinics = append(b.clinics, c)
	return c
}

func (b *Backend) AddPractitioner(clinicID, name string) appointment.Practitioner {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := appointment.Practitioner{ID: uuid.NewString(), Name: name, ClinicID: clinicID}
	b.practitioners = append(b.practitioners, p)
	return p
}

// AddPet stores a pet. With nested set, the pet is served with the owner
// object embedded; otherwise only the owner id is sent.
func (b *Backend) AddPet(name string, owner record.Owner, nested bool) record.Pet {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := record.Pet{ID: uuid.NewString(), Name: name, Owner: record.OwnerRecord(owner)}
	b.pets[p.ID] = petRow{pet: p, nested: nested}
	return b.servedPetLocked(b.pets[p.ID])
}

// AddOrphanPet stores a pet that has no owner reference at all.
func (b *Backend) AddOrphanPet(name string) record.Pet {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := record.Pet{ID: uuid.NewString(), Name: name}
	b.pets[p.ID] = petRow{pet: p}
	return p
}

// AddUser registers the session user behind a bearer token.
func (b *Backend) AddUser(token string, actor appointment.Actor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[token] = actor
}

// SetCurrentUser sets the user /me returns for requests without a known token.
func (b *Backend) SetCurrentUser(actor *appointment.Actor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = actor
}

// FailNext makes the next request to route (e.g. "POST /appointments")
// answer with status and an error body.
func (b *Backend) FailNext(route string, status int, errCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, body: errCode}
}

// DelaySlots holds slot responses for clinicID by d.
func (b *Backend) DelaySlots(clinicID string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slotDelays[clinicID] = d
}

func (b *Backend) Clinics() []appointment.Clinic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]appointment.Clinic(nil), b.clinics...)
}

func (b *Backend) Practitioners(clinicID string) []appointment.Practitioner {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.practitionersLocked(clinicID)
}

func (b *Backend) Pets() []record.Pet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]record.Pet, 0, len(b.pets))
	for _, row := range b.pets {
		out = append(out, b.servedPetLocked(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) Appointments() []appointment.Appointment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]appointment.Appointment, 0, len(b.appointments))
	for _, a := range b.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (b *Backend) Records() []record.ClinicalRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]record.ClinicalRecord, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsultedAt.Before(out[j].ConsultedAt) })
	return out
}

func (b *Backend) practitionersLocked(clinicID string) []appointment.Practitioner {
	out := make([]appointment.Practitioner, 0, len(b.practitioners))
	for _, p := range b.practitioners {
		if clinicID == "" || p.ClinicID == clinicID {
			out = append(out, p)
		}
	}
	return out
}

func (b *Backend) servedPetLocked(row petRow) record.Pet {
	if row.nested {
		return row.pet
	}
	p := row.pet
	p.Owner = record.OwnerID(row.pet.Owner.ID())
	return p
}

func (b *Backend) clinicExistsLocked(id string) bool {
	for _, c := range b.clinics {
		if c.ID == id {
			return true
		}
	}
	return false
}

// slotsLocked builds the grid for one day. Slots are pre-assigned to the
// clinic's practitioners round robin and are free unless an active
// appointment holds them.
func (b *Backend) slotsLocked(clinicID string, date time.Time) []appointment.Slot {
	practitioners := b.practitionersLocked(clinicID)

	y, m, d := date.Date()
	start := time.Date(y, m, d, b.opts.OpenHour, 0, 0, 0, b.opts.Location)
	end := time.Date(y, m, d, b.opts.CloseHour, 0, 0, 0, b.opts.Location)

	var out []appointment.Slot
	for i, at := 0, start; at.Before(end); i, at = i+1, at.Add(b.opts.Step) {
		s := appointment.Slot{Timestamp: at, Free: !b.takenLocked(clinicID, at, "")}
		if len(practitioners) > 0 {
			p := practitioners[i%len(practitioners)]
			s.PractitionerID = p.ID
			s.PractitionerName = p.Name
		}
		out = append(out, s)
	}
	return out
}

func (b *Backend) takenLocked(clinicID string, at time.Time, exceptID string) bool {
	at = at.Truncate(time.Minute)
	for id, a := range b.appointments {
		if id == exceptID || a.ClinicID != clinicID {
			continue
		}
		if !a.ScheduledAt.Truncate(time.Minute).Equal(at) {
			continue
		}
		if a.Status == appointment.StatusCancelled || a.Status == appointment.StatusNoShow {
			continue
		}
		return true
	}
	return false
}
