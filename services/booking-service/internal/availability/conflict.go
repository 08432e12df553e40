package availability

import (
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// FindConflict returns the first active appointment that overlaps the
// candidate [start, endWithBuffer). The caller folds the buffer into the
// candidate end; buffer is also applied to each existing end so the check is
// symmetric. excludeID skips the appointment being rescheduled.
func FindConflict(existing []model.Appointment, start, endWithBuffer time.Time, buffer time.Duration, excludeID string) (model.Appointment, bool) {
	candidate := Interval{Start: start, End: endWithBuffer}
	for _, a := range existing {
		if !a.Active() || (excludeID != "" && a.ID == excludeID) {
			continue
		}
		if BusyInterval(a, buffer).Overlaps(candidate) {
			return a, true
		}
	}
	return model.Appointment{}, false
}

// CheckConflict is FindConflict reported as a *ConflictError.
func CheckConflict(existing []model.Appointment, start, endWithBuffer time.Time, buffer time.Duration, excludeID string) error {
	if a, ok := FindConflict(existing, start, endWithBuffer, buffer, excludeID); ok {
		return &ConflictError{Appointment: a}
	}
	return nil
}
