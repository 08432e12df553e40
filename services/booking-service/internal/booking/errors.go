package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrBookingClosed        = errors.New("booking is closed for the requested time")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
	ErrTokenInvalid         = errors.New("booking link is expired or already used")
	ErrTemplateMissing      = errors.New("no template staff configured")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// invalidFrom wraps an engine validation error as a field error.
func invalidFrom(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// IsValidation reports whether err should be surfaced as a client input error.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) || availability.IsValidation(err)
}
