package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked      = "booking.appointment.booked.v1"
	EventAppointmentConfirmed   = "booking.appointment.confirmed.v1"
	EventAppointmentPending     = "booking.appointment.pending.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
)

type appointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	TimeBlockID   string `json:"time_block_id"`
	ClientName    string `json:"client_name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Wechat        string `json:"wechat,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

// AppointmentEvent builds the outbox envelope for an appointment change.
func AppointmentEvent(eventType string, appt model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: appt.ID,
		StaffID:       appt.StaffID,
		TimeBlockID:   appt.TimeBlockID,
		ClientName:    appt.ClientName,
		Phone:         appt.Phone,
		Email:         appt.Email,
		Wechat:        appt.Wechat,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// StatusEvent maps a status transition to its event type.
func StatusEvent(status model.AppointmentStatus) string {
	switch status {
	case model.StatusConfirmed:
		return EventAppointmentConfirmed
	case model.StatusPending:
		return EventAppointmentPending
	case model.StatusCancelled:
		return EventAppointmentCancelled
	}
	return EventAppointmentRescheduled
}
