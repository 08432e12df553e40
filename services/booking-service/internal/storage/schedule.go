package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

type ScheduleRepository struct {
	db db.Conn
}

func NewScheduleRepository(conn db.Conn) *ScheduleRepository {
	return &ScheduleRepository{db: conn}
}

// GetOrCreateSettings returns the staff settings, inserting defaults the first time they are read.
func (r *ScheduleRepository) GetOrCreateSettings(ctx context.Context, staffID string) (model.StaffSettings, error) {
	s, err := r.GetSettings(ctx, r.db, staffID)
	if err == nil || !IsNotFound(err) {
		return s, err
	}
	d := model.DefaultStaffSettings(staffID)
	_, err = r.db.Exec(ctx, `
		INSERT INTO staff_settings
			(staff_id, timezone, booking_interval, buffer_minutes, open_until, calendar_start_hour, calendar_end_hour)
		VALUES ($1, $2, $3, $4, NULL, $5, $6)
		ON CONFLICT (staff_id) DO NOTHING
	`, staffID, d.Timezone, d.BookingInterval, d.BufferMinutes, d.CalendarStartHour, d.CalendarEndHour)
	if err != nil {
		return model.StaffSettings{}, err
	}
	return r.GetSettings(ctx, r.db, staffID)
}

func (r *ScheduleRepository) GetSettings(ctx context.Context, q db.Conn, staffID string) (model.StaffSettings, error) {
	if q == nil {
		q = r.db
	}
	var s model.StaffSettings
	var openUntil *time.Time
	err := q.QueryRow(ctx, `
		SELECT staff_id::text, timezone, booking_interval, buffer_minutes, open_until,
			calendar_start_hour, calendar_end_hour
		FROM staff_settings
		WHERE staff_id = $1
	`, staffID).Scan(
		&s.StaffID,
		&s.Timezone,
		&s.BookingInterval,
		&s.BufferMinutes,
		&openUntil,
		&s.CalendarStartHour,
		&s.CalendarEndHour,
	)
	if err != nil {
		return model.StaffSettings{}, err
	}
	s.OpenUntil = openUntil
	return s, nil
}

func (r *ScheduleRepository) UpsertSettings(ctx context.Context, q db.Conn, s model.StaffSettings) error {
	if q == nil {
		q = r.db
	}
	_, err := q.Exec(ctx, `
		INSERT INTO staff_settings
			(staff_id, timezone, booking_interval, buffer_minutes, open_until, calendar_start_hour, calendar_end_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (staff_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			booking_interval = EXCLUDED.booking_interval,
			buffer_minutes = EXCLUDED.buffer_minutes,
			open_until = EXCLUDED.open_until,
			calendar_start_hour = EXCLUDED.calendar_start_hour,
			calendar_end_hour = EXCLUDED.calendar_end_hour,
			updated_at = now()
	`, s.StaffID, s.Timezone, s.BookingInterval, s.BufferMinutes, s.OpenUntil, s.CalendarStartHour, s.CalendarEndHour)
	return err
}

func (r *ScheduleRepository) ListRules(ctx context.Context, q db.Conn, staffID string) ([]model.ScheduleRule, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.Query(ctx, `
		SELECT id::text, staff_id::text, day_of_week, start_time, end_time, slot_type
		FROM schedule_rules
		WHERE staff_id = $1
		ORDER BY day_of_week ASC, start_time ASC
	`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.ScheduleRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *ScheduleRepository) GetRule(ctx context.Context, id string) (model.ScheduleRule, error) {
	return scanRule(r.db.QueryRow(ctx, `
		SELECT id::text, staff_id::text, day_of_week, start_time, end_time, slot_type
		FROM schedule_rules
		WHERE id = $1
	`, id))
}

func (r *ScheduleRepository) CreateRule(ctx context.Context, rule model.ScheduleRule) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO schedule_rules (id, staff_id, day_of_week, start_time, end_time, slot_type)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rule.ID, rule.StaffID, rule.DayOfWeek, rule.StartTime, rule.EndTime, string(rule.SlotType))
	return err
}

func (r *ScheduleRepository) UpdateRule(ctx context.Context, rule model.ScheduleRule) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE schedule_rules
		SET day_of_week = $2, start_time = $3, end_time = $4, slot_type = $5, updated_at = now()
		WHERE id = $1
	`, rule.ID, rule.DayOfWeek, rule.StartTime, rule.EndTime, string(rule.SlotType))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ScheduleRepository) DeleteRule(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM schedule_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRule(row pgx.Row) (model.ScheduleRule, error) {
	var rule model.ScheduleRule
	var slotType string
	if err := row.Scan(&rule.ID, &rule.StaffID, &rule.DayOfWeek, &rule.StartTime, &rule.EndTime, &slotType); err != nil {
		return model.ScheduleRule{}, err
	}
	rule.SlotType = model.SlotType(slotType)
	return rule, nil
}
