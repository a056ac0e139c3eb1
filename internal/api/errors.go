package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/conveyor-core/internal/auth"
	"github.com/nerrad567/conveyor-core/internal/bridges/modbus"
	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
	"github.com/nerrad567/conveyor-core/internal/conveyor"
	"github.com/nerrad567/conveyor-core/internal/ledger"
	"github.com/nerrad567/conveyor-core/internal/scan"
	"github.com/nerrad567/conveyor-core/internal/slots"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// Error is the body of an error response: {"error": {...}}.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error Error `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeConflict     = "conflict"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: Error{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// classify maps a domain error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, scan.ErrMalformedCode),
		errors.Is(err, slots.ErrInvalidSlot),
		errors.Is(err, conveyor.ErrSlotOutOfRange),
		errors.Is(err, auth.ErrInvalidPIN),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, spot.ErrValidation),
		errors.Is(err, spot.ErrUnsupportedOp),
		errors.Is(err, spot.ErrEmptyFile):
		return http.StatusUnprocessableEntity, ErrCodeValidation

	case errors.Is(err, ledger.ErrConflict),
		errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, auth.ErrPINInUse),
		errors.Is(err, scan.ErrTicketProcessed),
		errors.Is(err, scan.ErrTicketComplete),
		errors.Is(err, slots.ErrNotFaulted),
		errors.Is(err, slots.ErrNoAvailableSlots):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrNoOperators),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrSessionClosed):
		return http.StatusUnauthorized, ErrCodeUnauthorized

	case errors.Is(err, opcua.ErrNotConnected),
		errors.Is(err, opcua.ErrDevice),
		errors.Is(err, modbus.ErrFieldBus),
		errors.Is(err, conveyor.ErrFieldBusDisabled),
		errors.Is(err, scan.ErrNoConveyor):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeDomainError writes err with the status classify picks. Internal
// errors are logged and their text is not sent to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}
