package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

const appointmentColumns = `id, staff_id, time_block_id, client_name, phone, email, wechat,
	start_time, end_time, status, notes, booking_token, created_at, updated_at`

type AppointmentRepository struct {
	db db.Conn
}

type IdempotencyRecord struct {
	StaffID         string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// AppointmentFilter narrows admin listings. Zero values are ignored.
type AppointmentFilter struct {
	StaffID string
	From    time.Time
	To      time.Time
	Limit   int
}

func NewAppointmentRepository(conn db.Conn) *AppointmentRepository {
	return &AppointmentRepository{db: conn}
}

// LockStaff serializes writers for one staff member until tx ends.
func (r *AppointmentRepository) LockStaff(ctx context.Context, tx pgx.Tx, staffID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, staffID)
	return err
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, staff_id, time_block_id, client_name, phone, email, wechat, start_time, end_time, status, notes, booking_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, appt.ID, appt.StaffID, appt.TimeBlockID, appt.ClientName, appt.Phone, appt.Email, appt.Wechat,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.Notes, appt.BookingToken,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

// ListActive returns non-cancelled appointments of a staff member that
// intersect [from, to). q may be a transaction.
func (r *AppointmentRepository) ListActive(ctx context.Context, q db.Conn, staffID string, from, to time.Time) ([]model.Appointment, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE staff_id = $1
			AND status <> 'CANCELLED'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) List(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	if f.StaffID != "" {
		args = append(args, f.StaffID)
		where = append(where, fmt.Sprintf("staff_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("start_time < $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY start_time ASC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) Update(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		UPDATE appointments
		SET time_block_id = $2,
			start_time = $3,
			end_time = $4,
			status = $5,
			notes = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appt.ID, appt.TimeBlockID, appt.StartTime, appt.EndTime, string(appt.Status), appt.Notes).Scan(&appt.UpdatedAt)
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	var updatedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id).Scan(&updatedAt)
	return updatedAt, err
}

func (r *AppointmentRepository) CountActiveByTimeBlock(ctx context.Context, q db.Conn, timeBlockID string) (int, error) {
	if q == nil {
		q = r.db
	}
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE time_block_id = $1 AND status <> 'CANCELLED'
	`, timeBlockID).Scan(&n)
	return n, err
}

// LockIdempotencyKey claims key for the staff member, returning the stored
// record and true when an earlier request already used it.
func (r *AppointmentRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, staffID, key string) (IdempotencyRecord, bool, error) {
	rec, err := selectIdempotencyForUpdate(ctx, tx, staffID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (staff_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (staff_id, idempotency_key) DO NOTHING
	`, staffID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = selectIdempotencyForUpdate(ctx, tx, staffID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *AppointmentRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, staffID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE staff_id = $1 AND idempotency_key = $2
	`, staffID, key, appointmentID, statusCode, response)
	return err
}

// FindCompletedIdempotency returns the stored record for key when a request
// using it has already committed a response. Completed records never change,
// so no lock is taken.
func (r *AppointmentRepository) FindCompletedIdempotency(ctx context.Context, staffID, key string) (IdempotencyRecord, bool, error) {
	rec, err := selectIdempotency(ctx, r.db, staffID, key, "")
	if errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, len(rec.ResponsePayload) > 0, nil
}

func selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, staffID, key string) (IdempotencyRecord, error) {
	return selectIdempotency(ctx, tx, staffID, key, "FOR UPDATE")
}

func selectIdempotency(ctx context.Context, q db.Conn, staffID, key, lock string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := q.QueryRow(ctx, `
		SELECT staff_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE staff_id = $1 AND idempotency_key = $2
		`+lock, staffID, key).Scan(
		&rec.StaffID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.StaffID,
		&appt.TimeBlockID,
		&appt.ClientName,
		&appt.Phone,
		&appt.Email,
		&appt.Wechat,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&appt.Notes,
		&appt.BookingToken,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.AppointmentStatus(status)
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
