package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/petclinic-scheduling/internal/redis"
)

type memStore struct {
	mu        sync.Mutex
	seq       int
	items     map[string]Appointment
	creates   int
	createErr error
	updateErr error
	// onCreate runs inside CreateAppointment, before the write lands.
	onCreate func()
}

func newMemStore() *memStore {
	return &memStore{items: map[string]Appointment{}}
}

func (s *memStore) put(a Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[a.ID] = a
}

func (s *memStore) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return nil, &RemoteError{StatusCode: 404, Message: "appointment not found"}
	}
	return &a, nil
}

func (s *memStore) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if s.onCreate != nil {
		s.onCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.seq++
	a.ID = fmt.Sprintf("appt-%d", s.seq)
	s.items[a.ID] = a
	return &a, nil
}

func (s *memStore) UpdateAppointment(_ context.Context, id string, p Patch) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	a, ok := s.items[id]
	if !ok {
		return nil, &RemoteError{StatusCode: 404, Message: "appointment not found"}
	}
	if p.ScheduledAt != nil {
		a.ScheduledAt = *p.ScheduledAt
	}
	if p.ClinicID != nil {
		a.ClinicID = *p.ClinicID
	}
	if p.Reason != nil {
		a.Reason = *p.Reason
	}
	s.items[id] = a
	return &a, nil
}

func (s *memStore) DeleteAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *memStore) TransitionAppointment(_ context.Context, id string, to Status) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.items[id]
	a.Status = to
	s.items[id] = a
	return &a, nil
}

type memJournal struct {
	mu     sync.Mutex
	events []EventLog
	err    error
}

func (j *memJournal) InsertEvent(_ context.Context, ev EventLog) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.events))
	for i, ev := range j.events {
		out[i] = ev.EventType
	}
	return out
}

type invalidation struct {
	clinicID string
	day      time.Time
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
}

func (r *recordingInvalidator) Invalidate(_ context.Context, clinicID string, date time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidation{clinicID: clinicID, day: Day(date)})
}

type serviceFixture struct {
	svc     *Service
	store   *memStore
	journal *memJournal
	inv     *recordingInvalidator
}

func newServiceFixture(t *testing.T, locker redisclient.Locker) *serviceFixture {
	t.Helper()
	f := &serviceFixture{store: newMemStore(), journal: &memJournal{}, inv: &recordingInvalidator{}}
	f.svc = NewService(ServiceConfig{
		Store:   f.store,
		Locker:  locker,
		Journal: f.journal,
		Logger:  zerolog.Nop(),
	})
	f.svc.SetInvalidator(f.inv)
	return f
}

var desk = Actor{ID: "desk-1", Role: RoleFrontDesk, ClinicID: "clinic-a"}

func TestServiceCreate(t *testing.T) {
	f := newServiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), desk, fullDraft())
	require.NoError(t, err)
	assert.Equal(t, "appt-1", created.ID)
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC), created.ScheduledAt)

	assert.Equal(t, []string{EventAppointmentCreated}, f.journal.types())
	assert.Equal(t, []invalidation{{clinicID: "clinic-a", day: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}}, f.inv.calls)
}

func TestServiceCreate_ValidationSkipsRemote(t *testing.T) {
	f := newServiceFixture(t, nil)
	d := fullDraft()
	d.PetID = ""

	_, err := f.svc.Create(context.Background(), desk, d)
	requireMissing(t, err, "pet_id")
	assert.Zero(t, f.store.creates)
	assert.Empty(t, f.inv.calls)
}

func TestServiceCreate_BackendConflictInvalidates(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.createErr = &RemoteError{StatusCode: 409, SlotUnavailable: true}

	_, err := f.svc.Create(context.Background(), desk, fullDraft())
	require.Error(t, err)
	assert.True(t, IsSlotUnavailable(err))
	assert.Equal(t, []string{EventSlotConflict}, f.journal.types())
	require.Len(t, f.inv.calls, 1, "sessions showing the pair are refreshed")
}

func TestServiceCreate_JournalFailureDoesNotFailWrite(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.journal.err = errors.New("postgres down")

	created, err := f.svc.Create(context.Background(), desk, fullDraft())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestServiceCreate_SlotLockContention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redisclient.NewRedisSlotLocker(client, 5*time.Second)

	f := newServiceFixture(t, locker)
	d := fullDraft()

	// a second booking of the same slot arrives while the first holds the lock
	var nested error
	f.store.onCreate = func() {
		f.store.onCreate = nil
		_, nested = f.svc.Create(context.Background(), desk, d)
	}

	_, err := f.svc.Create(context.Background(), desk, d)
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrSlotBeingBooked)
	assert.Equal(t, 1, f.store.creates, "the loser never reaches the clinic API")
	assert.False(t, mr.Exists(redisclient.SlotKey(d.ClinicID, d.ScheduledAt)), "lock released after booking")
}

func TestServiceUpdate_InvalidatesOldAndNewPairs(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{
		ID:          "appt-7",
		ScheduledAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Status:      StatusScheduled,
		ClinicID:    "clinic-a",
	})

	moved := time.Date(2026, 6, 3, 11, 0, 0, 0, time.UTC)
	clinicB := "clinic-b"
	updated, err := f.svc.Update(context.Background(), desk, "appt-7", Patch{ScheduledAt: &moved, ClinicID: &clinicB})
	require.NoError(t, err)
	assert.Equal(t, moved, updated.ScheduledAt)

	assert.Equal(t, []invalidation{
		{clinicID: "clinic-a", day: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		{clinicID: "clinic-b", day: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)},
	}, f.inv.calls)
	assert.Equal(t, []string{EventAppointmentUpdated}, f.journal.types())
}

func TestServiceUpdate_SameDayInvalidatesOnce(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{ID: "appt-7", ScheduledAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), ClinicID: "clinic-a"})

	later := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	_, err := f.svc.Update(context.Background(), desk, "appt-7", Patch{ScheduledAt: &later})
	require.NoError(t, err)
	assert.Len(t, f.inv.calls, 1)
}

func TestServiceUpdate_Rejections(t *testing.T) {
	f := newServiceFixture(t, nil)
	status := StatusConfirmed

	_, err := f.svc.Update(context.Background(), desk, "appt-1", Patch{Status: &status})
	requireMissing(t, err, "status")

	_, err = f.svc.Update(context.Background(), desk, "", Patch{})
	requireMissing(t, err, "id")

	_, err = f.svc.Update(context.Background(), Actor{Role: Role("guest")}, "appt-1", Patch{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestServiceTransition(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{ID: "appt-1", Status: StatusScheduled, ClientID: "owner-1", ClinicID: "clinic-a", ScheduledAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)})

	_, err := f.svc.Transition(ctx, Actor{ID: "owner-2", Role: RoleClient}, "appt-1", StatusCancelled)
	assert.ErrorIs(t, err, ErrUnauthorized, "clients act only on their own appointments")

	_, err = f.svc.Transition(ctx, desk, "appt-1", StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := f.svc.Transition(ctx, Actor{ID: "owner-1", Role: RoleClient}, "appt-1", StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, []string{EventAppointmentTransitioned}, f.journal.types())
	assert.Len(t, f.inv.calls, 1, "cancelling frees the slot")

	_, err = f.svc.Transition(ctx, desk, "appt-1", StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition, "cancelled is terminal")
}

func TestServiceDelete(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{ID: "appt-1", ClinicID: "clinic-a", ScheduledAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)})

	err := f.svc.Delete(ctx, Actor{ID: "vet", Role: RolePractitioner}, "appt-1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.Delete(ctx, desk, "appt-1"))
	_, err = f.store.GetAppointment(ctx, "appt-1")
	assert.Error(t, err)
	assert.Equal(t, []string{EventAppointmentDeleted}, f.journal.types())
	assert.Len(t, f.inv.calls, 1)
}

func TestServiceUpdate_ClientOwnership(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{ID: "appt-1", Status: StatusScheduled, ClientID: "owner-1", ClinicID: "clinic-a", ScheduledAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)})
	reason := "limping"

	_, err := f.svc.Update(ctx, Actor{ID: "owner-2", Role: RoleClient}, "appt-1", Patch{Reason: &reason})
	assert.ErrorIs(t, err, ErrUnauthorized)

	other := "owner-2"
	_, err = f.svc.Update(ctx, Actor{ID: "owner-1", Role: RoleClient}, "appt-1", Patch{ClientID: &other})
	assert.ErrorIs(t, err, ErrUnauthorized)

	current, err := f.store.GetAppointment(ctx, "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", current.ClientID)
	assert.Empty(t, current.Reason)
	assert.Empty(t, f.journal.types())

	updated, err := f.svc.Update(ctx, Actor{ID: "owner-1", Role: RoleClient}, "appt-1", Patch{Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "limping", updated.Reason)
}

func TestServiceUpdate_OffsetTimestampSameInstantDay(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.put(Appointment{ID: "appt-7", ScheduledAt: time.Date(2026, 6, 1, 22, 30, 0, 0, time.UTC), ClinicID: "clinic-a"})

	// 2026-06-02T00:45+02:00 is 2026-06-01T22:45Z, still the stored day
	east := time.FixedZone("UTC+2", 2*60*60)
	later := time.Date(2026, 6, 2, 0, 45, 0, 0, east)
	_, err := f.svc.Update(context.Background(), desk, "appt-7", Patch{ScheduledAt: &later})
	require.NoError(t, err)
	assert.Len(t, f.inv.calls, 1, "moving within one day invalidates a single pair")
}

func TestSameDayReadsSecondInFirstZone(t *testing.T) {
	east := time.FixedZone("UTC+2", 2*60*60)
	utcDay := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(utcDay, time.Date(2026, 6, 2, 0, 30, 0, 0, east)))
	assert.False(t, SameDay(utcDay, time.Date(2026, 6, 1, 1, 30, 0, 0, east)))
	assert.True(t, SameDay(utcDay, time.Date(2026, 6, 1, 23, 59, 0, 0, time.UTC)))
}
