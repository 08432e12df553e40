package booking

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
)

var allowedBookingIntervals = map[int]bool{10: true, 15: true, 30: true}

func (s *Service) GetSettings(ctx context.Context, staffID string) (model.StaffSettings, error) {
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return model.StaffSettings{}, err
	}
	return s.schedule.GetOrCreateSettings(ctx, staffID)
}

// SettingsPatch is a partial settings update. ClearOpenUntil removes the
// booking cutoff; OpenUntil sets it.
type SettingsPatch struct {
	Timezone          *string
	BookingInterval   *int
	BufferMinutes     *int
	OpenUntil         *time.Time
	ClearOpenUntil    bool
	CalendarStartHour *int
	CalendarEndHour   *int
}

// UpdateSettings merges patch over the stored settings and validates the
// result as a whole, so calendar hours are checked after both ends apply.
func (s *Service) UpdateSettings(ctx context.Context, staffID string, patch SettingsPatch) (model.StaffSettings, error) {
	cur, err := s.GetSettings(ctx, staffID)
	if err != nil {
		return model.StaffSettings{}, err
	}
	if patch.Timezone != nil {
		cur.Timezone = strings.TrimSpace(*patch.Timezone)
	}
	if patch.BookingInterval != nil {
		cur.BookingInterval = *patch.BookingInterval
	}
	if patch.BufferMinutes != nil {
		cur.BufferMinutes = *patch.BufferMinutes
	}
	switch {
	case patch.ClearOpenUntil:
		cur.OpenUntil = nil
	case patch.OpenUntil != nil:
		t := patch.OpenUntil.UTC()
		cur.OpenUntil = &t
	}
	if patch.CalendarStartHour != nil {
		cur.CalendarStartHour = *patch.CalendarStartHour
	}
	if patch.CalendarEndHour != nil {
		cur.CalendarEndHour = *patch.CalendarEndHour
	}

	if !allowedBookingIntervals[cur.BookingInterval] {
		return model.StaffSettings{}, invalid("bookingInterval", "must be 10, 15 or 30")
	}
	if _, err := availability.CompileSettings(cur); err != nil {
		return model.StaffSettings{}, invalidFrom("settings", err)
	}
	if err := s.schedule.UpsertSettings(ctx, nil, cur); err != nil {
		return model.StaffSettings{}, err
	}
	s.logger.Info("staff settings updated", "staff_id", staffID, "timezone", cur.Timezone,
		"buffer_minutes", cur.BufferMinutes)
	return cur, nil
}

// RulesResult carries a staff member's rules with any same-day overlaps.
type RulesResult struct {
	Rules    []model.ScheduleRule        `json:"rules"`
	Warnings []availability.RuleOverlap `json:"warnings"`
}

func (s *Service) ListRules(ctx context.Context, staffID string) (RulesResult, error) {
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return RulesResult{}, err
	}
	return s.rulesWithWarnings(ctx, staffID)
}

func (s *Service) rulesWithWarnings(ctx context.Context, staffID string) (RulesResult, error) {
	rules, err := s.schedule.ListRules(ctx, nil, staffID)
	if err != nil {
		return RulesResult{}, err
	}
	compiled, err := availability.CompileRules(rules)
	if err != nil {
		return RulesResult{}, err
	}
	if rules == nil {
		rules = []model.ScheduleRule{}
	}
	warnings := availability.FindRuleOverlaps(compiled)
	if warnings == nil {
		warnings = []availability.RuleOverlap{}
	}
	return RulesResult{Rules: rules, Warnings: warnings}, nil
}

// normalizeRule validates a rule and rewrites its clocks in canonical HH:mm form.
func normalizeRule(r model.ScheduleRule) (model.ScheduleRule, error) {
	c, err := availability.CompileRule(r)
	if err != nil {
		return model.ScheduleRule{}, invalidFrom("rule", err)
	}
	r.StartTime = availability.FormatClock(c.Start)
	r.EndTime = availability.FormatClock(c.End)
	return r, nil
}

func (s *Service) CreateRule(ctx context.Context, rule model.ScheduleRule) (model.ScheduleRule, RulesResult, error) {
	if _, err := s.requireStaff(ctx, rule.StaffID); err != nil {
		return model.ScheduleRule{}, RulesResult{}, err
	}
	rule, err := normalizeRule(rule)
	if err != nil {
		return model.ScheduleRule{}, RulesResult{}, err
	}
	rule.ID = uuid.NewString()
	if err := s.schedule.CreateRule(ctx, rule); err != nil {
		return model.ScheduleRule{}, RulesResult{}, err
	}
	res, err := s.rulesWithWarnings(ctx, rule.StaffID)
	return rule, res, err
}

func (s *Service) UpdateRule(ctx context.Context, rule model.ScheduleRule) (model.ScheduleRule, RulesResult, error) {
	cur, err := s.schedule.GetRule(ctx, rule.ID)
	if storage.IsNotFound(err) {
		return model.ScheduleRule{}, RulesResult{}, notFound("schedule rule", rule.ID)
	}
	if err != nil {
		return model.ScheduleRule{}, RulesResult{}, err
	}
	rule.StaffID = cur.StaffID
	rule, err = normalizeRule(rule)
	if err != nil {
		return model.ScheduleRule{}, RulesResult{}, err
	}
	if err := s.schedule.UpdateRule(ctx, rule); err != nil {
		if storage.IsNotFound(err) {
			return model.ScheduleRule{}, RulesResult{}, notFound("schedule rule", rule.ID)
		}
		return model.ScheduleRule{}, RulesResult{}, err
	}
	res, err := s.rulesWithWarnings(ctx, rule.StaffID)
	return rule, res, err
}

func (s *Service) DeleteRule(ctx context.Context, id string) error {
	err := s.schedule.DeleteRule(ctx, id)
	if storage.IsNotFound(err) {
		return notFound("schedule rule", id)
	}
	return err
}
