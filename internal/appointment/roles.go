package appointment

import (
	"strings"
	"time"
)

// createRule lists what a role must fill in, or gets filled in for it, when
// creating an appointment.
type createRule struct {
	requireClinic       bool
	requirePractitioner bool
	// practitioners book for themselves in their own clinic
	defaultsToSelf bool
}

var createRules = map[Role]createRule{
	RoleAdmin:        {},
	RoleFrontDesk:    {requireClinic: true, requirePractitioner: true},
	RolePractitioner: {defaultsToSelf: true},
	RoleClient:       {requireClinic: true},
}

// deleteRoles may remove an appointment outright.
var deleteRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleFrontDesk: true,
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// prepareCreate applies role defaults to d and checks every required field
// before any network call is made.
func prepareCreate(actor Actor, d Draft) (Draft, error) {
	rule, ok := createRules[actor.Role]
	if !ok {
		return d, ErrUnauthorized
	}

	if rule.defaultsToSelf {
		if blank(d.PractitionerID) {
			d.PractitionerID = actor.ID
		}
		if blank(d.ClinicID) {
			d.ClinicID = actor.ClinicID
		}
	}

	switch {
	case d.ScheduledAt.IsZero():
		return d, missing("scheduled_at")
	case blank(d.ClientID):
		return d, missing("client_id")
	case blank(d.PetID):
		return d, missing("pet_id")
	case rule.requireClinic && blank(d.ClinicID):
		return d, missing("clinic_id")
	case rule.requirePractitioner && blank(d.PractitionerID):
		return d, missing("practitioner_id")
	}

	d.ScheduledAt = d.ScheduledAt.Truncate(time.Minute)
	return d, nil
}

// checkPatch rejects patches that would blank a required field.
func checkPatch(actor Actor, p Patch) error {
	rule := createRules[actor.Role]
	switch {
	case p.Status != nil:
		return &ValidationError{Field: "status", Reason: "can only change through a transition"}
	case p.ScheduledAt != nil && p.ScheduledAt.IsZero():
		return missing("scheduled_at")
	case p.ClientID != nil && blank(*p.ClientID):
		return missing("client_id")
	case p.PetID != nil && blank(*p.PetID):
		return missing("pet_id")
	case rule.requireClinic && p.ClinicID != nil && blank(*p.ClinicID):
		return missing("clinic_id")
	case rule.requirePractitioner && p.PractitionerID != nil && blank(*p.PractitionerID):
		return missing("practitioner_id")
	}
	return nil
}
