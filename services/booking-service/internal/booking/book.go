package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type BookRequest struct {
	StaffID        string
	TimeBlockID    string
	StartTime      time.Time
	ClientName     string
	Phone          string
	Email          string
	Wechat         string
	BookingToken   string
	IdempotencyKey string
}

type BookResult struct {
	Appointment model.Appointment
	Replayed    bool
}

func (r *BookRequest) normalize() {
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	r.Wechat = strings.TrimSpace(r.Wechat)
	r.BookingToken = strings.TrimSpace(r.BookingToken)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

func (r BookRequest) validate() error {
	switch {
	case r.StaffID == "":
		return invalid("staffId", "is required")
	case r.TimeBlockID == "":
		return invalid("timeBlockId", "is required")
	case r.StartTime.IsZero():
		return invalid("startTime", "is required")
	case r.ClientName == "":
		return invalid("clientName", "is required")
	}
	if err := validateContact(r.Phone, r.Email, r.Wechat); err != nil {
		return err
	}
	if len(r.IdempotencyKey) > 128 {
		return invalid("Idempotency-Key", "must be at most 128 characters")
	}
	return nil
}

func validateContact(phone, email, wechat string) error {
	if phone == "" && email == "" && wechat == "" {
		return invalid("contact", "at least one of phone, email or wechat is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return invalid("email", "is not a valid address")
		}
	}
	return nil
}

// Book creates an appointment. Validation happens against a snapshot first;
// the conflict check and the write then run under a per-staff lock.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()

	res, err := s.book(ctx, req)
	outcome := bookOutcome(err, res.Replayed)
	s.metrics.ObserveAttempt(metrics.OperationBook, outcome)
	span.SetAttributes(attribute.String("staff.id", req.StaffID), attribute.String("booking.outcome", outcome))

	log := s.logger.With("staff_id", req.StaffID, "start_time", req.StartTime.UTC().Format(time.RFC3339))
	switch outcome {
	case metrics.OutcomeCreated, metrics.OutcomeReplayed:
		log.Info("appointment booked", "appointment_id", res.Appointment.ID,
			"status", res.Appointment.Status, "replayed", res.Replayed)
	case metrics.OutcomeError:
		span.RecordError(err)
		span.SetStatus(codes.Error, "book")
		log.Error("booking failed", "err", err)
	default:
		log.Warn("booking rejected", "outcome", outcome, "err", err)
	}
	return res, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (BookResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return BookResult{}, err
	}
	// A completed request is answered from its stored response, never re-validated.
	if req.IdempotencyKey != "" {
		rec, done, err := s.appts.FindCompletedIdempotency(ctx, req.StaffID, req.IdempotencyKey)
		if err != nil {
			return BookResult{}, err
		}
		if done {
			return replayBooking(rec)
		}
	}
	if _, err := s.requireStaff(ctx, req.StaffID); err != nil {
		return BookResult{}, err
	}
	block, err := s.catalog.GetTimeBlock(ctx, req.TimeBlockID)
	if storage.IsNotFound(err) {
		return BookResult{}, notFound("time block", req.TimeBlockID)
	}
	if err != nil {
		return BookResult{}, err
	}
	if block.StaffID != req.StaffID || !block.IsActive {
		return BookResult{}, invalid("timeBlockId", "is not an active time block of this staff member")
	}
	if req.BookingToken != "" {
		tok, err := s.catalog.GetToken(ctx, nil, req.BookingToken)
		if storage.IsNotFound(err) || (err == nil && !tok.Usable(s.now())) {
			return BookResult{}, ErrTokenInvalid
		}
		if err != nil {
			return BookResult{}, err
		}
	}

	sched, err := s.loadSchedule(ctx, nil, req.StaffID)
	if err != nil {
		return BookResult{}, err
	}
	start := req.StartTime
	end := start.Add(time.Duration(block.DurationMins) * time.Minute)
	if sched.settings.ClosedAt(start) {
		return BookResult{}, ErrBookingClosed
	}
	if err := availability.ValidateWindow(start, end, sched.settings.Location, sched.rules); err != nil {
		return BookResult{}, err
	}

	appt := model.Appointment{
		ID:           uuid.NewString(),
		StaffID:      req.StaffID,
		TimeBlockID:  req.TimeBlockID,
		ClientName:   req.ClientName,
		Phone:        req.Phone,
		Email:        req.Email,
		Wechat:       req.Wechat,
		StartTime:    start,
		EndTime:      end,
		Status:       availability.ResolveStatus(start, sched.settings.Location, sched.rules),
		BookingToken: req.BookingToken,
	}

	var result BookResult
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.appts.LockStaff(ctx, tx, req.StaffID); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			rec, seen, err := s.appts.LockIdempotencyKey(ctx, tx, req.StaffID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if seen && len(rec.ResponsePayload) > 0 {
				result, err = replayBooking(rec)
				return err
			}
		}

		existing, err := s.appts.ListActive(ctx, tx, req.StaffID,
			start.Add(-sched.settings.Buffer), end.Add(sched.settings.Buffer))
		if err != nil {
			return err
		}
		if err := availability.CheckConflict(existing, start, end.Add(sched.settings.Buffer), sched.settings.Buffer, ""); err != nil {
			return err
		}
		if req.BookingToken != "" {
			if err := s.catalog.MarkTokenUsed(ctx, tx, req.BookingToken, s.now()); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrTokenInvalid
				}
				return err
			}
		}
		if err := s.appts.Create(ctx, tx, &appt); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, tx, outbox.EventAppointmentBooked, appt); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			payload, err := json.Marshal(appt)
			if err != nil {
				return err
			}
			if err := s.appts.FinalizeIdempotency(ctx, tx, req.StaffID, req.IdempotencyKey, appt.ID, http.StatusCreated, payload); err != nil {
				return err
			}
		}
		result = BookResult{Appointment: appt}
		return nil
	})
	if err != nil {
		return BookResult{}, err
	}
	return result, nil
}

func replayBooking(rec storage.IdempotencyRecord) (BookResult, error) {
	var prev model.Appointment
	if err := json.Unmarshal(rec.ResponsePayload, &prev); err != nil {
		return BookResult{}, fmt.Errorf("decode idempotent response: %w", err)
	}
	return BookResult{Appointment: prev, Replayed: true}, nil
}

func bookOutcome(err error, replayed bool) string {
	var conflict *availability.ConflictError
	switch {
	case err == nil && replayed:
		return metrics.OutcomeReplayed
	case err == nil:
		return metrics.OutcomeCreated
	case errors.As(err, &conflict):
		return metrics.OutcomeConflict
	case errors.Is(err, availability.ErrOutsideWorkingHours):
		return metrics.OutcomeRejected
	case errors.Is(err, ErrBookingClosed):
		return metrics.OutcomeClosed
	case IsValidation(err), errors.Is(err, ErrNotFound), errors.Is(err, ErrTokenInvalid):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}
