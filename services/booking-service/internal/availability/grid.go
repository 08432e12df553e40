package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

const DaysInWeek = 7

// Cell is one 15-minute unit of the weekly availability grid.
type Cell struct {
	Date     string         `json:"date"`
	Hour     int            `json:"hour"`
	Quarter  int            `json:"quarter"`
	SlotType model.SlotType `json:"slotType"`
	CellID   string         `json:"cellId"`
}

func MakeCellID(date string, hour, quarter int) string {
	return date + "|" + strconv.Itoa(hour) + "|" + strconv.Itoa(quarter)
}

func ParseCellID(id string) (date string, hour, quarter int, err error) {
	parts := strings.Split(id, "|")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellID, id)
	}
	if _, err := ParseDate(parts[0]); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellID, id)
	}
	hour, err = strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellID, id)
	}
	quarter, err = strconv.Atoi(parts[2])
	if err != nil || quarter < 0 || quarter >= QuartersInHour {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellID, id)
	}
	return parts[0], hour, quarter, nil
}

// Interval is a half-open span of absolute time [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// BusyInterval is the span an appointment blocks, trailing buffer included.
func BusyInterval(a model.Appointment, buffer time.Duration) Interval {
	return Interval{Start: a.StartTime, End: a.EndTime.Add(buffer)}
}

// DayOfWeekForOffset maps an offset from the week's Monday to Sunday=0 numbering.
func DayOfWeekForOffset(dayOffset int) int {
	return (dayOffset + 1) % DaysInWeek
}

// GridSize is the number of cells BuildWeek returns for the given settings.
func GridSize(s Settings) int {
	return DaysInWeek * (s.CalendarEndHour - s.CalendarStartHour) * QuartersInHour
}

// BuildWeek computes the grid for the week starting on the calendar date
// weekStart (a Monday). Cancelled appointments are ignored.
func BuildWeek(weekStart time.Time, s Settings, rules RuleSet, appointments []model.Appointment) []Cell {
	busy := make([]Interval, 0, len(appointments))
	for _, a := range appointments {
		if !a.Active() {
			continue
		}
		busy = append(busy, BusyInterval(a, s.Buffer))
	}

	cells := make([]Cell, 0, GridSize(s))
	for dayOffset := 0; dayOffset < DaysInWeek; dayOffset++ {
		day := AddDays(weekStart, dayOffset)
		date := FormatDate(day)
		dayOfWeek := DayOfWeekForOffset(dayOffset)
		dayRules := rules.ForDay(dayOfWeek)

		for hour := s.CalendarStartHour; hour < s.CalendarEndHour; hour++ {
			for quarter := 0; quarter < QuartersInHour; quarter++ {
				minute := hour*60 + quarter*SlotMinutes
				slotType := dayRules.Resolve(dayOfWeek, minute)

				if slotType != model.SlotUnavailable {
					occurrences := WallClockOccurrences(day, minute, s.Location)
					if s.ClosedAt(occurrences[0]) {
						slotType = model.SlotUnavailable
					} else if cellBusy(occurrences, busy) {
						slotType = model.SlotBooked
					}
				}

				cells = append(cells, Cell{
					Date:     date,
					Hour:     hour,
					Quarter:  quarter,
					SlotType: slotType,
					CellID:   MakeCellID(date, hour, quarter),
				})
			}
		}
	}
	return cells
}

// cellBusy reports whether any occurrence of a cell's wall-clock quarter hour
// overlaps a busy interval.
func cellBusy(occurrences []time.Time, busy []Interval) bool {
	for _, start := range occurrences {
		if overlapsAny(Interval{Start: start, End: start.Add(SlotMinutes * time.Minute)}, busy) {
			return true
		}
	}
	return false
}

func overlapsAny(cell Interval, busy []Interval) bool {
	for _, b := range busy {
		if cell.Overlaps(b) {
			return true
		}
	}
	return false
}

// WeekBounds returns an absolute range wide enough to hold every appointment
// that can touch the week's grid, buffer and DST shifts included.
func WeekBounds(weekStart time.Time, s Settings) (time.Time, time.Time) {
	from := WallClock(AddDays(weekStart, -1), 0, s.Location).Add(-s.Buffer)
	to := WallClock(AddDays(weekStart, DaysInWeek+1), 0, s.Location)
	return from, to
}
