package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SlotMinutes    = 15
	MinutesPerDay  = 24 * 60
	QuartersInHour = 60 / SlotMinutes
	dateLayout     = "2006-01-02"
)

// ParseClock converts "HH:mm" into minutes since midnight. "24:00" is accepted
// so a rule can run to the end of the day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hour*60 + minute, nil
}

// ParseQuarterClock is ParseClock plus the 15-minute alignment required of rule times.
func ParseQuarterClock(s string) (int, error) {
	mins, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	if mins%SlotMinutes != 0 {
		return 0, fmt.Errorf("%w: %q", ErrClockNotAligned, s)
	}
	return mins, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a calendar date. The result is midnight UTC and only its
// year, month and day are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// AddDays shifts a calendar date; the clock part is ignored.
func AddDays(date time.Time, days int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day()+days, 0, 0, 0, 0, time.UTC)
}

// WallClock resolves the local wall-clock time date+minute in loc to an instant.
// Times that fall into a DST gap are normalized by the time package.
func WallClock(date time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minute, 0, 0, loc)
}

// WallClockOccurrences returns every instant at which the wall clock in loc
// reads date+minute, earliest first. It has two entries inside the hour
// repeated when clocks fall back and one otherwise.
func WallClockOccurrences(date time.Time, minute int, loc *time.Location) []time.Time {
	first := WallClock(date, minute, loc)
	_, dayStartOffset := WallClock(date, 0, loc).Zone()
	_, dayEndOffset := WallClock(AddDays(date, 1), 0, loc).Zone()
	shift := time.Duration(dayStartOffset-dayEndOffset) * time.Second
	if shift <= 0 {
		return []time.Time{first}
	}
	want := first.In(loc)
	for _, c := range []time.Time{first.Add(-shift), first.Add(shift)} {
		got := c.In(loc)
		if got.Day() == want.Day() && got.Hour() == want.Hour() && got.Minute() == want.Minute() {
			if c.Before(first) {
				return []time.Time{c, first}
			}
			return []time.Time{first, c}
		}
	}
	return []time.Time{first}
}

// LocalDate returns the calendar date of t as seen in loc.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// MinuteOfDay returns the wall-clock minute of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
