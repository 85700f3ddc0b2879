package record

import (
	"errors"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
)

type OutcomeKind string

const (
	KindFullSuccess    OutcomeKind = "full"
	KindPartialSuccess OutcomeKind = "partial"
	KindFailure        OutcomeKind = "failure"
)

// Outcome is the result of a record submission. Record is set for both
// success kinds; FollowUpErr only for partial success; Err only for failure.
type Outcome struct {
	Kind        OutcomeKind
	Record      *ClinicalRecord
	FollowUp    *appointment.Appointment
	FollowUpErr error
	Err         error
}

func FullSuccess(rec *ClinicalRecord, followUp *appointment.Appointment) Outcome {
	return Outcome{Kind: KindFullSuccess, Record: rec, FollowUp: followUp}
}

func PartialSuccess(rec *ClinicalRecord, followUpErr error) Outcome {
	return Outcome{Kind: KindPartialSuccess, Record: rec, FollowUpErr: followUpErr}
}

func Failure(err error) Outcome {
	return Outcome{Kind: KindFailure, Err: err}
}

// Message is the user-facing summary. Partial success must read differently
// from full success.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindFullSuccess:
		if o.FollowUp != nil {
			return "Clinical record created and follow-up appointment scheduled"
		}
		return "Clinical record created"
	case KindPartialSuccess:
		var link *MissingLinkageError
		if errors.As(o.FollowUpErr, &link) {
			return "Clinical record created, but the follow-up appointment could not be scheduled: missing " + link.Missing
		}
		return "Clinical record created, but the follow-up appointment could not be scheduled"
	default:
		return "Clinical record could not be created"
	}
}
