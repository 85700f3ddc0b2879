package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	redisclient "github.com/hackgods/petclinic-scheduling/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps core and remote errors onto HTTP responses. Slot
// conflicts tell the client to refetch its slot options.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		valErr    *appointment.ValidationError
		fieldErrs validator.ValidationErrors
		remoteErr *appointment.RemoteError
	)

	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation_failed",
			Details: valErr.Error(),
			Field:   valErr.Field,
		})
	case errors.As(err, &fieldErrs):
		fe := fieldErrs[0]
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation_failed",
			Details: fe.Field() + " failed " + fe.Tag(),
			Field:   strings.ToLower(fe.Field()),
		})
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken),
		errors.Is(err, appointment.ErrSlotNotOffered),
		errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired),
		appointment.IsSlotUnavailable(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:        "slot_unavailable",
			Details:      err.Error(),
			RefetchSlots: true,
		})
	case errors.Is(err, appointment.ErrUnknownClinic),
		errors.Is(err, appointment.ErrUnknownPractitioner):
		writeError(w, http.StatusUnprocessableEntity, "unknown_reference", err.Error())
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.As(err, &remoteErr):
		status := http.StatusBadGateway
		if remoteErr.StatusCode >= 400 && remoteErr.StatusCode < 500 {
			status = remoteErr.StatusCode
		}
		writeError(w, status, "clinic_api_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
