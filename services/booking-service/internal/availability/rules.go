package availability

import (
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// Rule is a schedule rule with its clock strings resolved to minutes.
// The range is half-open: [Start, End).
type Rule struct {
	ID        string
	DayOfWeek int
	Start     int
	End       int
	SlotType  model.SlotType
}

func (r Rule) Contains(minute int) bool {
	return minute >= r.Start && minute < r.End
}

// CompileRule validates a stored rule and converts it for resolution.
func CompileRule(r model.ScheduleRule) (Rule, error) {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return Rule{}, fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, r.DayOfWeek)
	}
	switch r.SlotType {
	case model.SlotAvailable, model.SlotPendingConfirm, model.SlotUnavailable:
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidSlotType, r.SlotType)
	}
	start, err := ParseQuarterClock(r.StartTime)
	if err != nil {
		return Rule{}, err
	}
	end, err := ParseQuarterClock(r.EndTime)
	if err != nil {
		return Rule{}, err
	}
	if end <= start {
		return Rule{}, fmt.Errorf("%w: %s-%s", ErrInvalidRuleRange, r.StartTime, r.EndTime)
	}
	return Rule{ID: r.ID, DayOfWeek: r.DayOfWeek, Start: start, End: end, SlotType: r.SlotType}, nil
}

// RuleSet is every recurring rule of one staff member.
type RuleSet []Rule

func CompileRules(rules []model.ScheduleRule) (RuleSet, error) {
	out := make(RuleSet, 0, len(rules))
	for _, r := range rules {
		c, err := CompileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (rs RuleSet) ForDay(dayOfWeek int) RuleSet {
	var out RuleSet
	for _, r := range rs {
		if r.DayOfWeek == dayOfWeek {
			out = append(out, r)
		}
	}
	return out
}

// Resolve classifies minute on dayOfWeek. AVAILABLE wins as soon as any
// covering rule has it, then PENDING_CONFIRM; everything else is UNAVAILABLE.
func (rs RuleSet) Resolve(dayOfWeek, minute int) model.SlotType {
	result := model.SlotUnavailable
	for _, r := range rs {
		if r.DayOfWeek != dayOfWeek || !r.Contains(minute) {
			continue
		}
		switch r.SlotType {
		case model.SlotAvailable:
			return model.SlotAvailable
		case model.SlotPendingConfirm:
			result = model.SlotPendingConfirm
		}
	}
	return result
}

// Bookable reports whether minute is covered by an AVAILABLE or PENDING_CONFIRM rule.
func (rs RuleSet) Bookable(dayOfWeek, minute int) bool {
	return rs.Resolve(dayOfWeek, minute) != model.SlotUnavailable
}

// RuleOverlap names two same-day rules whose ranges intersect. Overlap is
// allowed and only reported back to whoever edits the schedule.
type RuleOverlap struct {
	DayOfWeek int    `json:"dayOfWeek"`
	RuleID    string `json:"ruleId"`
	OtherID   string `json:"otherRuleId"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func FindRuleOverlaps(rs RuleSet) []RuleOverlap {
	sorted := make(RuleSet, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DayOfWeek != sorted[j].DayOfWeek {
			return sorted[i].DayOfWeek < sorted[j].DayOfWeek
		}
		return sorted[i].Start < sorted[j].Start
	})

	var out []RuleOverlap
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if a.DayOfWeek != b.DayOfWeek || b.Start >= a.End {
				break
			}
			out = append(out, RuleOverlap{
				DayOfWeek: a.DayOfWeek,
				RuleID:    a.ID,
				OtherID:   b.ID,
				Start:     FormatClock(b.Start),
				End:       FormatClock(min(a.End, b.End)),
			})
		}
	}
	return out
}
