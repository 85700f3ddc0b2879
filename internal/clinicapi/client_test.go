package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestFetchSlots_SendsDateAndToken(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clinics/c-1/slots", r.URL.Path)
		assert.Equal(t, "2026-03-10", r.URL.Query().Get("date"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]appointment.Slot{{Timestamp: at, Free: true, PractitionerID: "p-1"}})
	}))

	ctx := WithToken(context.Background(), "tok-123")
	slots, err := c.FetchSlots(ctx, "c-1", at)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Free)
	assert.Equal(t, "p-1", slots[0].PractitionerID)
}

func TestFetchSlots_NullBodyIsEmptySlice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))

	slots, err := c.FetchSlots(context.Background(), "c-1", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestCreateAppointment_ConflictIsSlotUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"slot_taken"}`))
	}))

	_, err := c.CreateAppointment(context.Background(), appointment.Appointment{ClinicID: "c-1"})
	require.Error(t, err)

	var re *appointment.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusConflict, re.StatusCode)
	assert.True(t, appointment.IsSlotUnavailable(err))
}

func TestRemoteError_PlainTextBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))

	_, err := c.FetchClinics(context.Background())
	var re *appointment.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.Equal(t, "backend exploded", re.Message)
	assert.False(t, re.SlotUnavailable)
}

func TestTransportFailureIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.FetchClinics(context.Background())
	var re *appointment.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Zero(t, re.StatusCode)
	assert.NotNil(t, re.Err)
}

func TestTransitionAppointment_PostsStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appointments/a-1/status", r.URL.Path)
		var body statusBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, appointment.StatusConfirmed, body.Status)
		_ = json.NewEncoder(w).Encode(appointment.Appointment{ID: "a-1", Status: body.Status})
	}))

	got, err := c.TransitionAppointment(context.Background(), "a-1", appointment.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
}

func TestGetPet_DecodesBothOwnerShapes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pets/bare":
			_, _ = w.Write([]byte(`{"id":"bare","name":"Rex","propietario":"o-1"}`))
		case "/pets/nested":
			_, _ = w.Write([]byte(`{"id":"nested","name":"Tom","propietario":{"id":"o-2","name":"Ana"}}`))
		default:
			http.NotFound(w, r)
		}
	}))

	bare, err := c.GetPet(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, "o-1", bare.Owner.ID())

	nested, err := c.GetPet(context.Background(), "nested")
	require.NoError(t, err)
	assert.Equal(t, "o-2", nested.Owner.ID())
	owner, ok := nested.Owner.Record()
	require.True(t, ok)
	assert.Equal(t, "Ana", owner.Name)
}

func TestDeleteRecord_NoContent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.DeleteRecord(context.Background(), "r-1"))
}

func TestListRecords_FiltersByPet(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pet-9", r.URL.Query().Get("pet_id"))
		_ = json.NewEncoder(w).Encode([]record.ClinicalRecord{{ID: "r-1", PetID: "pet-9"}})
	}))

	recs, err := c.ListRecords(context.Background(), "pet-9")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r-1", recs[0].ID)
}
