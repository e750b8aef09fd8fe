package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/device"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/flow"
	"github.com/nerrad567/medication-tracker/internal/medication"
	"github.com/nerrad567/medication-tracker/internal/tracker"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeInvalidValue   = "invalid_value"
	ErrCodeDuplicateDose  = "duplicate_dose"
	ErrCodeMissingTarget  = "missing_target"
	ErrCodeUnknownService = "unknown_service"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error onto a status and code. Errors it
// does not recognise are reported as internal errors without their text.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, medication.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidValue, err.Error())
	case errors.Is(err, medication.ErrMissingTarget):
		writeError(w, http.StatusNotFound, ErrCodeMissingTarget, err.Error())
	case errors.Is(err, medication.ErrDuplicateDose):
		writeError(w, http.StatusConflict, ErrCodeDuplicateDose, err.Error())
	case errors.Is(err, tracker.ErrUnknownService):
		writeError(w, http.StatusNotFound, ErrCodeUnknownService, err.Error())
	case errors.Is(err, configentry.ErrEntryNotFound),
		errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, entity.ErrEntityNotFound),
		errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, configentry.ErrInvalidEntry),
		errors.Is(err, flow.ErrUnknownStep),
		errors.Is(err, entity.ErrInvalidEntityID):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, entity.ErrLoopStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "tracker is shutting down")
	default:
		writeInternalError(w, "internal server error")
	}
}
