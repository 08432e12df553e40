package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// Settings is the per-staff configuration the engine computes against.
type Settings struct {
	Location          *time.Location
	Buffer            time.Duration
	OpenUntil         *time.Time
	CalendarStartHour int
	CalendarEndHour   int
}

func CompileSettings(s model.StaffSettings) (Settings, error) {
	loc, err := LoadLocation(s.Timezone)
	if err != nil {
		return Settings{}, err
	}
	if s.BufferMinutes < 0 {
		return Settings{}, fmt.Errorf("%w: %d", ErrInvalidBuffer, s.BufferMinutes)
	}
	if err := ValidateCalendarHours(s.CalendarStartHour, s.CalendarEndHour); err != nil {
		return Settings{}, err
	}
	return Settings{
		Location:          loc,
		Buffer:            time.Duration(s.BufferMinutes) * time.Minute,
		OpenUntil:         s.OpenUntil,
		CalendarStartHour: s.CalendarStartHour,
		CalendarEndHour:   s.CalendarEndHour,
	}, nil
}

func ValidateCalendarHours(start, end int) error {
	if start < 0 || end > 24 || end <= start {
		return fmt.Errorf("%w: %d-%d", ErrInvalidCalendarHours, start, end)
	}
	return nil
}

// ClosedAt reports whether an instant is at or past the booking cutoff.
func (s Settings) ClosedAt(t time.Time) bool {
	return s.OpenUntil != nil && !t.Before(*s.OpenUntil)
}
