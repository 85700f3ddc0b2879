package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
)

type stubRecords struct {
	created []ClinicalRecord
	err     error
}

func (s *stubRecords) CreateRecord(_ context.Context, r ClinicalRecord) (*ClinicalRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	r.ID = "rec-1"
	s.created = append(s.created, r)
	return &r, nil
}

func (s *stubRecords) UpdateRecord(_ context.Context, id string, r ClinicalRecord) (*ClinicalRecord, error) {
	r.ID = id
	return &r, nil
}

func (s *stubRecords) DeleteRecord(context.Context, string) error { return s.err }

type stubPets map[string]Pet

func (s stubPets) GetPet(_ context.Context, id string) (*Pet, error) {
	p, ok := s[id]
	if !ok {
		return nil, &appointment.RemoteError{StatusCode: 404, Message: "pet not found"}
	}
	return &p, nil
}

type stubPractitioners map[string]appointment.Practitioner

func (s stubPractitioners) GetPractitioner(_ context.Context, id string) (*appointment.Practitioner, error) {
	p, ok := s[id]
	if !ok {
		return nil, &appointment.RemoteError{StatusCode: 404, Message: "practitioner not found"}
	}
	return &p, nil
}

type stubSession struct {
	actor *appointment.Actor
	err   error
}

func (s stubSession) CurrentUser(context.Context) (*appointment.Actor, error) {
	return s.actor, s.err
}

type stubCreator struct {
	drafts []appointment.Draft
	actors []appointment.Actor
	err    error
}

func (s *stubCreator) Create(_ context.Context, actor appointment.Actor, d appointment.Draft) (*appointment.Appointment, error) {
	s.actors = append(s.actors, actor)
	s.drafts = append(s.drafts, d)
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Appointment{ID: "appt-9", ScheduledAt: d.ScheduledAt, ClinicID: d.ClinicID, Status: appointment.StatusScheduled}, nil
}

type workflowFixture struct {
	wf       *Workflow
	records  *stubRecords
	pets     stubPets
	creator  *stubCreator
	events   *eventSink
	followAt time.Time
}

type eventSink struct{ types []string }

func (e *eventSink) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	e.types = append(e.types, ev.EventType)
	return nil
}

func newWorkflowFixture(session stubSession) *workflowFixture {
	f := &workflowFixture{
		records: &stubRecords{},
		pets: stubPets{
			"pet-bare":   {ID: "pet-bare", Name: "Rex", Owner: OwnerID("owner-1")},
			"pet-nested": {ID: "pet-nested", Name: "Luna", Owner: OwnerRecord(Owner{ID: "owner-2", Name: "Ana"})},
			"pet-orphan": {ID: "pet-orphan", Name: "Stray"},
		},
		creator:  &stubCreator{},
		events:   &eventSink{},
		followAt: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
	}
	f.wf = NewWorkflow(WorkflowConfig{
		Records:       f.records,
		Pets:          f.pets,
		Practitioners: stubPractitioners{"vet-1": {ID: "vet-1", ClinicID: "clinic-a"}},
		Session:       session,
		Appointments:  f.creator,
		Journal:       f.events,
		Logger:        zerolog.Nop(),
	})
	return f
}

var vetSession = stubSession{actor: &appointment.Actor{ID: "vet-1", Role: appointment.RolePractitioner, ClinicID: "clinic-a"}}

func recordFor(petID string) ClinicalRecord {
	return ClinicalRecord{
		ConsultedAt:     time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Diagnosis:       "otitis",
		Recommendations: "recheck ears",
		PetID:           petID,
		PractitionerID:  "vet-1",
	}
}

func TestSubmit_WithoutFollowUp(t *testing.T) {
	f := newWorkflowFixture(vetSession)

	out := f.wf.Submit(context.Background(), Draft{Record: recordFor("pet-bare")}, nil)
	assert.Equal(t, KindFullSuccess, out.Kind)
	require.NotNil(t, out.Record)
	assert.Equal(t, "rec-1", out.Record.ID)
	assert.Nil(t, out.FollowUp)
	assert.Empty(t, f.creator.drafts, "no appointment without a follow-up date")
	assert.Equal(t, "Clinical record created", out.Message())
	assert.Equal(t, []string{EventRecordCreated}, f.events.types)
}

func TestSubmit_ChainsFollowUp(t *testing.T) {
	for _, petID := range []string{"pet-bare", "pet-nested"} {
		t.Run(petID, func(t *testing.T) {
			f := newWorkflowFixture(vetSession)

			out := f.wf.Submit(context.Background(), Draft{Record: recordFor(petID)}, &f.followAt)
			require.Equal(t, KindFullSuccess, out.Kind, out.Message())
			require.NotNil(t, out.FollowUp)
			assert.Equal(t, "appt-9", out.FollowUp.ID)

			require.Len(t, f.creator.drafts, 1)
			d := f.creator.drafts[0]
			assert.Equal(t, f.pets[petID].Owner.ID(), d.ClientID)
			assert.Equal(t, petID, d.PetID)
			assert.Equal(t, "vet-1", d.PractitionerID)
			assert.Equal(t, "clinic-a", d.ClinicID)
			assert.Equal(t, FollowUpReason, d.Reason)
			assert.Equal(t, "recheck ears", d.Notes)
			assert.Equal(t, f.followAt, d.ScheduledAt)
			assert.Equal(t, "vet-1", f.creator.actors[0].ID)
			assert.Contains(t, out.Message(), "follow-up appointment scheduled")
			assert.Equal(t, []string{EventRecordCreated, EventFollowUpScheduled}, f.events.types)
		})
	}
}

func TestSubmit_PreloadedPetSkipsLookup(t *testing.T) {
	f := newWorkflowFixture(vetSession)
	pet := Pet{ID: "pet-unlisted", Owner: OwnerID("owner-7")}

	out := f.wf.Submit(context.Background(), Draft{Record: recordFor("pet-unlisted"), Pet: &pet}, &f.followAt)
	require.Equal(t, KindFullSuccess, out.Kind)
	assert.Equal(t, "owner-7", f.creator.drafts[0].ClientID)
}

func TestSubmit_MissingOwnerIsPartial(t *testing.T) {
	f := newWorkflowFixture(vetSession)

	out := f.wf.Submit(context.Background(), Draft{Record: recordFor("pet-orphan")}, &f.followAt)
	assert.Equal(t, KindPartialSuccess, out.Kind)
	require.NotNil(t, out.Record, "the record stays persisted")
	assert.Len(t, f.records.created, 1)
	assert.Empty(t, f.creator.drafts)

	var link *MissingLinkageError
	require.True(t, errors.As(out.FollowUpErr, &link))
	assert.Equal(t, "owner", link.Missing)
	assert.Contains(t, out.Message(), "missing owner")
	assert.NotEqual(t, FullSuccess(out.Record, nil).Message(), out.Message())
	assert.Equal(t, []string{EventRecordCreated, EventFollowUpNotCreated}, f.events.types)
}

func TestSubmit_MissingClinicIsPartial(t *testing.T) {
	f := newWorkflowFixture(stubSession{actor: &appointment.Actor{ID: "admin", Role: appointment.RoleAdmin}})
	rec := recordFor("pet-bare")
	rec.PractitionerID = "vet-unknown"

	out := f.wf.Submit(context.Background(), Draft{Record: rec}, &f.followAt)
	assert.Equal(t, KindPartialSuccess, out.Kind)
	var link *MissingLinkageError
	require.True(t, errors.As(out.FollowUpErr, &link))
	assert.Equal(t, "clinic", link.Missing)
}

func TestSubmit_SessionClinicFallback(t *testing.T) {
	f := newWorkflowFixture(stubSession{actor: &appointment.Actor{ID: "desk", Role: appointment.RoleFrontDesk, ClinicID: "clinic-b"}})
	rec := recordFor("pet-bare")
	rec.PractitionerID = "vet-unknown"

	out := f.wf.Submit(context.Background(), Draft{Record: rec}, &f.followAt)
	require.Equal(t, KindFullSuccess, out.Kind, out.Message())
	assert.Equal(t, "clinic-b", f.creator.drafts[0].ClinicID)
}

func TestSubmit_FollowUpRejectedIsPartial(t *testing.T) {
	f := newWorkflowFixture(vetSession)
	f.creator.err = &appointment.RemoteError{StatusCode: 409, SlotUnavailable: true}

	out := f.wf.Submit(context.Background(), Draft{Record: recordFor("pet-bare")}, &f.followAt)
	assert.Equal(t, KindPartialSuccess, out.Kind)
	assert.True(t, appointment.IsSlotUnavailable(out.FollowUpErr))
	assert.Equal(t, "Clinical record created, but the follow-up appointment could not be scheduled", out.Message())
}

func TestSubmit_RecordFailureAborts(t *testing.T) {
	f := newWorkflowFixture(vetSession)
	f.records.err = &appointment.RemoteError{StatusCode: 500, Message: "boom"}

	out := f.wf.Submit(context.Background(), Draft{Record: recordFor("pet-bare")}, &f.followAt)
	assert.Equal(t, KindFailure, out.Kind)
	assert.Nil(t, out.Record)
	assert.Empty(t, f.creator.drafts, "no follow-up without a record")
	assert.Equal(t, "Clinical record could not be created", out.Message())
}

func TestSubmit_ValidatesLocally(t *testing.T) {
	f := newWorkflowFixture(vetSession)
	rec := recordFor("pet-bare")
	rec.ConsultedAt = time.Time{}

	out := f.wf.Submit(context.Background(), Draft{Record: rec}, nil)
	assert.Equal(t, KindFailure, out.Kind)
	var ve *appointment.ValidationError
	require.True(t, errors.As(out.Err, &ve))
	assert.Equal(t, "consulted_at", ve.Field)
	assert.Empty(t, f.records.created)
}

func TestUpdateAndDeleteRecord(t *testing.T) {
	f := newWorkflowFixture(vetSession)

	updated, err := f.wf.Update(context.Background(), "rec-3", recordFor("pet-bare"))
	require.NoError(t, err)
	assert.Equal(t, "rec-3", updated.ID)

	_, err = f.wf.Update(context.Background(), " ", recordFor("pet-bare"))
	var ve *appointment.ValidationError
	require.True(t, errors.As(err, &ve))

	require.NoError(t, f.wf.Delete(context.Background(), "rec-3"))
	assert.Error(t, f.wf.Delete(context.Background(), ""))
}
