package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/studiobook/libs/auth"
	"github.com/md-rashed-zaman/studiobook/libs/httpx"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/booking"
)

const (
	codeValidation         = "VALIDATION_ERROR"
	codeNotFound           = "NOT_FOUND"
	codeTimeConflict       = "TIME_CONFLICT"
	codeOutsideHours       = "OUTSIDE_WORKING_HOURS"
	codeBookingClosed      = "BOOKING_CLOSED"
	codeTokenExpired       = "TOKEN_EXPIRED"
	codeCancelled          = "APPOINTMENT_CANCELLED"
	codeTemplateMissing    = "TEMPLATE_MISSING"
	codeUnauthorized       = "UNAUTHORIZED"
	codeInternal           = "INTERNAL"
	maxRequestBodyBytes    = 1 << 20
	dateOnlyLayout         = "2006-01-02"
	defaultAppointmentPage = 200
)

type errorBody struct {
	Error       string        `json:"error"`
	Message     string        `json:"message"`
	Field       string        `json:"field,omitempty"`
	Conflicting *conflictBody `json:"conflicting,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeError maps service errors onto HTTP statuses. Window rejections and
// time conflicts get distinct codes so clients can tell them apart.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict *availability.ConflictError
		verr     *booking.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		body := newConflictBody(conflict)
		writeJSON(w, http.StatusConflict, errorBody{
			Error:       codeTimeConflict,
			Message:     "the requested time overlaps an existing appointment",
			Conflicting: &body,
		})
	case errors.Is(err, availability.ErrOutsideWorkingHours):
		writeErrorCode(w, http.StatusUnprocessableEntity, codeOutsideHours, err.Error())
	case errors.Is(err, booking.ErrBookingClosed):
		writeErrorCode(w, http.StatusUnprocessableEntity, codeBookingClosed, err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: verr.Message, Field: verr.Field})
	case booking.IsValidation(err):
		writeErrorCode(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, booking.ErrTokenInvalid):
		writeErrorCode(w, http.StatusGone, codeTokenExpired, err.Error())
	case errors.Is(err, booking.ErrAppointmentCancelled):
		writeErrorCode(w, http.StatusConflict, codeCancelled, err.Error())
	case errors.Is(err, booking.ErrTemplateMissing):
		writeErrorCode(w, http.StatusConflict, codeTemplateMissing, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid username or password")
	default:
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeValidation, "invalid json body")
		return false
	}
	return true
}

// parseInstant accepts RFC3339 or a bare date; a date resolves to UTC midnight,
// or the following midnight when endOfDay is set.
func parseInstant(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}
