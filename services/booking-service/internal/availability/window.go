package availability

import (
	"fmt"
	"time"
)

// ValidateWindow accepts [start, end) only when it stays on one local calendar
// day and every 15-minute step from start is covered by a bookable rule.
// Steps are taken on absolute time, so a repeated fall-back hour is checked
// once per occurrence.
func ValidateWindow(start, end time.Time, loc *time.Location, rules RuleSet) error {
	if !end.After(start) {
		return ErrInvalidWindow
	}
	day := LocalDate(start, loc)
	if !day.Equal(LocalDate(end, loc)) {
		return ErrCrossesMidnight
	}

	localStart := start.In(loc)
	dayOfWeek := int(localStart.Weekday())
	dayRules := rules.ForDay(dayOfWeek)
	for t := start; t.Before(end); t = t.Add(SlotMinutes * time.Minute) {
		if !LocalDate(t, loc).Equal(day) {
			return ErrCrossesMidnight
		}
		m := MinuteOfDay(t.In(loc))
		if !dayRules.Bookable(dayOfWeek, m) {
			return fmt.Errorf("%w: %s at %s is not bookable",
				ErrOutsideWorkingHours, localStart.Weekday(), FormatClock(m))
		}
	}
	return nil
}
