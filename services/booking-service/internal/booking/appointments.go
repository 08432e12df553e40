package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type ListAppointmentsQuery struct {
	StaffID string
	From    time.Time
	To      time.Time
	Limit   int
}

func (s *Service) ListAppointments(ctx context.Context, q ListAppointmentsQuery) ([]model.Appointment, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.To.After(q.From) {
		return nil, invalid("end", "must be after start")
	}
	return s.appts.List(ctx, storage.AppointmentFilter{
		StaffID: q.StaffID,
		From:    q.From,
		To:      q.To,
		Limit:   q.Limit,
	})
}

func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.appts.Get(ctx, id)
	if storage.IsNotFound(err) {
		return model.Appointment{}, notFound("appointment", id)
	}
	return appt, err
}

// UpdateAppointmentRequest is a partial admin edit; nil fields are left alone.
type UpdateAppointmentRequest struct {
	StartTime   *time.Time
	TimeBlockID *string
	Status      *model.AppointmentStatus
	Notes       *string
}

// UpdateAppointment applies an admin edit. Moving the appointment or changing
// its time block recomputes the end and re-runs conflict detection against
// everything but the appointment itself. Working hours are not enforced here.
func (s *Service) UpdateAppointment(ctx context.Context, id string, req UpdateAppointmentRequest) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.update_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	if req.Status != nil && !req.Status.Valid() {
		return model.Appointment{}, invalid("status", "must be CONFIRMED, PENDING or CANCELLED")
	}
	if req.Status != nil && *req.Status == model.StatusCancelled {
		appt, err := s.CancelAppointment(ctx, id)
		if err != nil {
			return model.Appointment{}, err
		}
		if req.Notes == nil {
			return appt, nil
		}
		req = UpdateAppointmentRequest{Notes: req.Notes}
	}

	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	moving := req.StartTime != nil || req.TimeBlockID != nil

	var updated model.Appointment
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if moving {
			if err := s.appts.LockStaff(ctx, tx, current.StaffID); err != nil {
				return err
			}
		}
		appt, err := s.appts.GetForUpdate(ctx, tx, id)
		if storage.IsNotFound(err) {
			return notFound("appointment", id)
		}
		if err != nil {
			return err
		}
		if !appt.Active() && (moving || req.Status != nil) {
			return ErrAppointmentCancelled
		}
		prevStatus := appt.Status

		if moving {
			if err := s.move(ctx, tx, &appt, req); err != nil {
				return err
			}
		}
		if req.Status != nil {
			appt.Status = *req.Status
		}
		if req.Notes != nil {
			appt.Notes = strings.TrimSpace(*req.Notes)
		}
		if err := s.appts.Update(ctx, tx, &appt); err != nil {
			return err
		}
		if moving {
			if err := s.recordEvent(ctx, tx, outbox.EventAppointmentRescheduled, appt); err != nil {
				return err
			}
		}
		if appt.Status != prevStatus {
			if err := s.recordEvent(ctx, tx, outbox.StatusEvent(appt.Status), appt); err != nil {
				return err
			}
		}
		updated = appt
		return nil
	})

	if moving {
		s.metrics.ObserveAttempt(metrics.OperationReschedule, bookOutcome(err, false))
	}
	if err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Warn("reschedule conflict", "appointment_id", id, "conflicting_id", conflict.Appointment.ID)
		}
		return model.Appointment{}, err
	}
	s.logger.Info("appointment updated", "appointment_id", id, "staff_id", updated.StaffID, "status", updated.Status)
	return updated, nil
}

func (s *Service) move(ctx context.Context, tx pgx.Tx, appt *model.Appointment, req UpdateAppointmentRequest) error {
	if req.TimeBlockID != nil && *req.TimeBlockID != appt.TimeBlockID {
		block, err := s.catalog.GetTimeBlock(ctx, *req.TimeBlockID)
		if storage.IsNotFound(err) {
			return notFound("time block", *req.TimeBlockID)
		}
		if err != nil {
			return err
		}
		if block.StaffID != appt.StaffID {
			return invalid("timeBlockId", "belongs to a different staff member")
		}
		appt.TimeBlockID = block.ID
	}
	block, err := s.catalog.GetTimeBlock(ctx, appt.TimeBlockID)
	if storage.IsNotFound(err) {
		return notFound("time block", appt.TimeBlockID)
	}
	if err != nil {
		return err
	}
	if req.StartTime != nil {
		appt.StartTime = *req.StartTime
	}
	appt.EndTime = appt.StartTime.Add(time.Duration(block.DurationMins) * time.Minute)

	raw, err := s.schedule.GetOrCreateSettings(ctx, appt.StaffID)
	if err != nil {
		return err
	}
	settings, err := availability.CompileSettings(raw)
	if err != nil {
		return err
	}
	existing, err := s.appts.ListActive(ctx, tx, appt.StaffID,
		appt.StartTime.Add(-settings.Buffer), appt.EndTime.Add(settings.Buffer))
	if err != nil {
		return err
	}
	return availability.CheckConflict(existing, appt.StartTime, appt.EndTime.Add(settings.Buffer), settings.Buffer, appt.ID)
}

// CancelAppointment soft-deletes an appointment. Cancelling twice is a no-op.
func (s *Service) CancelAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var out model.Appointment
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		appt, err := s.appts.GetForUpdate(ctx, tx, id)
		if storage.IsNotFound(err) {
			return notFound("appointment", id)
		}
		if err != nil {
			return err
		}
		if !appt.Active() {
			out = appt
			return nil
		}
		updatedAt, err := s.appts.Cancel(ctx, tx, id)
		if err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		appt.UpdatedAt = updatedAt
		if err := s.recordEvent(ctx, tx, outbox.EventAppointmentCancelled, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id, "staff_id", out.StaffID)
	return out, nil
}
