package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Owner is the nested owner object some pet payloads embed.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// OwnerRef is either a bare owner identifier or a nested Owner, depending on
// how the pet was loaded. Use ID to read it regardless of shape.
type OwnerRef struct {
	id    string
	owner *Owner
}

func OwnerID(id string) OwnerRef {
	return OwnerRef{id: id}
}

func OwnerRecord(o Owner) OwnerRef {
	return OwnerRef{owner: &o}
}

// ID returns the owner identifier for either shape, or "" when unknown.
func (r OwnerRef) ID() string {
	if r.owner != nil {
		return r.owner.ID
	}
	return r.id
}

// Record returns the nested owner when the reference carries one.
func (r OwnerRef) Record() (Owner, bool) {
	if r.owner == nil {
		return Owner{}, false
	}
	return *r.owner, true
}

func (r OwnerRef) MarshalJSON() ([]byte, error) {
	if r.owner != nil {
		return json.Marshal(r.owner)
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

func (r *OwnerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = OwnerRef{}

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &r.id)
	case data[0] == '{':
		var aux struct {
			Owner
			LegacyID string `json:"_id"`
		}
		if err := json.Unmarshal(data, &aux); err != nil {
			return fmt.Errorf("decode owner: %w", err)
		}
		o := aux.Owner
		if o.ID == "" {
			o.ID = aux.LegacyID
		}
		r.owner = &o
		return nil
	case data[0] >= '0' && data[0] <= '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode owner id: %w", err)
		}
		r.id = n.String()
		return nil
	default:
		return fmt.Errorf("decode owner: unexpected %q", data)
	}
}

type Pet struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Owner OwnerRef `json:"propietario"`
}

type Vitals struct {
	WeightKg     *float64 `json:"weight_kg,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HeartRateBPM *int     `json:"heart_rate_bpm,omitempty"`
}

type ClinicalRecord struct {
	ID              string    `json:"id,omitempty"`
	ConsultedAt     time.Time `json:"consulted_at"`
	Symptoms        string    `json:"symptoms,omitempty"`
	Diagnosis       string    `json:"diagnosis,omitempty"`
	Treatment       string    `json:"treatment,omitempty"`
	Recommendations string    `json:"recommendations,omitempty"`
	Vitals          Vitals    `json:"vitals"`
	PetID           string    `json:"pet_id"`
	PractitionerID  string    `json:"practitioner_id"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
}

// Draft is a record about to be submitted. Pet is optional; when the form
// already loaded the pet it saves a round trip during follow-up chaining.
type Draft struct {
	Record ClinicalRecord
	Pet    *Pet
}
