package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type WeekGrid struct {
	StaffID   string              `json:"staffId"`
	WeekStart string              `json:"weekStart"`
	Timezone  string              `json:"timezone"`
	Cells     []availability.Cell `json:"cells"`
}

// schedule is the compiled configuration of one staff member for a single request.
type schedule struct {
	raw      model.StaffSettings
	settings availability.Settings
	rules    availability.RuleSet
}

func (s *Service) loadSchedule(ctx context.Context, q db.Conn, staffID string) (schedule, error) {
	raw, err := s.schedule.GetOrCreateSettings(ctx, staffID)
	if err != nil {
		return schedule{}, err
	}
	compiled, err := availability.CompileSettings(raw)
	if err != nil {
		return schedule{}, err
	}
	rawRules, err := s.schedule.ListRules(ctx, q, staffID)
	if err != nil {
		return schedule{}, err
	}
	rules, err := availability.CompileRules(rawRules)
	if err != nil {
		return schedule{}, err
	}
	return schedule{raw: raw, settings: compiled, rules: rules}, nil
}

func (s *Service) requireStaff(ctx context.Context, staffID string) (model.Staff, error) {
	if staffID == "" {
		return model.Staff{}, invalid("staffId", "is required")
	}
	st, err := s.catalog.GetStaff(ctx, staffID)
	if storage.IsNotFound(err) {
		return model.Staff{}, notFound("staff", staffID)
	}
	return st, err
}

// MondayOf returns the Monday of the week containing date.
func MondayOf(date time.Time) time.Time {
	offset := (int(date.Weekday()) + 6) % availability.DaysInWeek
	return availability.AddDays(date, -offset)
}

// WeekGrid computes the slot grid for the week containing weekStart.
func (s *Service) WeekGrid(ctx context.Context, staffID, weekStart string) (WeekGrid, error) {
	ctx, span := tracer.Start(ctx, "booking.week_grid")
	defer span.End()
	span.SetAttributes(attribute.String("staff.id", staffID), attribute.String("week.start", weekStart))

	date, err := availability.ParseDate(weekStart)
	if err != nil {
		return WeekGrid{}, invalidFrom("weekStart", err)
	}
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return WeekGrid{}, err
	}
	sched, err := s.loadSchedule(ctx, nil, staffID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load schedule")
		return WeekGrid{}, err
	}

	monday := MondayOf(date)
	from, to := availability.WeekBounds(monday, sched.settings)
	appts, err := s.appts.ListActive(ctx, nil, staffID, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list appointments")
		return WeekGrid{}, err
	}

	started := time.Now()
	cells := availability.BuildWeek(monday, sched.settings, sched.rules, appts)
	s.metrics.ObserveGridBuild(time.Since(started).Seconds())

	return WeekGrid{
		StaffID:   staffID,
		WeekStart: availability.FormatDate(monday),
		Timezone:  sched.raw.Timezone,
		Cells:     cells,
	}, nil
}
