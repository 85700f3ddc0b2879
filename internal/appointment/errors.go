package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("role is not allowed to perform this action")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrSlotTaken           = errors.New("slot is already taken")
	ErrSlotNotOffered      = errors.New("slot is not offered for the current selection")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")
	ErrUnknownClinic       = errors.New("clinic not found")
	ErrUnknownPractitioner = errors.New("practitioner not found")
)

// ValidationError is a local, pre-network failure naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field}
}

// RemoteError is any transport failure or non-2xx response from the clinic API.
type RemoteError struct {
	StatusCode int
	Message    string
	// SlotUnavailable is set when the backend rejected a booking because
	// another session took the slot first.
	SlotUnavailable bool
	Err             error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if e.SlotUnavailable {
		msg = "slot no longer available"
		if e.Message != "" {
			msg += ": " + e.Message
		}
	}
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("remote: %s: %v", msg, e.Err)
	case e.StatusCode == 0:
		return "remote: " + msg
	default:
		return fmt.Sprintf("remote: status %d: %s", e.StatusCode, msg)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsSlotUnavailable reports whether err is a backend rejection of an
// already-taken slot.
func IsSlotUnavailable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.SlotUnavailable
}
