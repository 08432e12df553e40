package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// Validation errors. Input carrying one of these is rejected before any computation.
var (
	ErrInvalidClock         = errors.New("time of day must be HH:mm between 00:00 and 24:00")
	ErrClockNotAligned      = errors.New("time of day must be a multiple of 15 minutes")
	ErrInvalidDate          = errors.New("date must be YYYY-MM-DD")
	ErrInvalidDayOfWeek     = errors.New("day of week must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidRuleRange     = errors.New("rule end time must be after start time")
	ErrInvalidSlotType      = errors.New("slot type must be AVAILABLE, PENDING_CONFIRM or UNAVAILABLE")
	ErrInvalidTimezone      = errors.New("unknown IANA timezone")
	ErrInvalidCalendarHours = errors.New("calendar hours must satisfy 0 <= start < end <= 24")
	ErrInvalidBuffer        = errors.New("buffer minutes must not be negative")
	ErrInvalidCellID        = errors.New("cell id must be date|hour|quarter")
	ErrInvalidWindow        = errors.New("appointment end must be after start")
)

// ErrOutsideWorkingHours rejects a window that is not fully covered by bookable rules.
var ErrOutsideWorkingHours = errors.New("requested time is outside working hours")

// ErrCrossesMidnight is a window rejection; errors.Is matches ErrOutsideWorkingHours too.
var ErrCrossesMidnight = fmt.Errorf("%w: appointment crosses midnight", ErrOutsideWorkingHours)

// IsValidation reports whether err is one of the engine's input validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidClock, ErrClockNotAligned, ErrInvalidDate, ErrInvalidDayOfWeek,
		ErrInvalidRuleRange, ErrInvalidSlotType, ErrInvalidTimezone, ErrInvalidCalendarHours,
		ErrInvalidBuffer, ErrInvalidCellID, ErrInvalidWindow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ConflictError carries the first existing appointment that overlaps a candidate interval.
type ConflictError struct {
	Appointment model.Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time conflict with appointment %s (%s - %s)",
		e.Appointment.ID,
		e.Appointment.StartTime.UTC().Format(time.RFC3339),
		e.Appointment.EndTime.UTC().Format(time.RFC3339),
	)
}
