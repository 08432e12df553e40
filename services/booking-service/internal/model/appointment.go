package model

import "time"

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusPending   AppointmentStatus = "PENDING"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusCancelled:
		return true
	}
	return false
}

// Appointment stores the raw booked interval. The staff buffer is never
// persisted; it is applied when grids and conflicts are computed.
type Appointment struct {
	ID           string            `json:"id"`
	StaffID      string            `json:"staffId"`
	TimeBlockID  string            `json:"timeBlockId"`
	ClientName   string            `json:"clientName"`
	Phone        string            `json:"phone,omitempty"`
	Email        string            `json:"email,omitempty"`
	Wechat       string            `json:"wechat,omitempty"`
	StartTime    time.Time         `json:"startTime"`
	EndTime      time.Time         `json:"endTime"`
	Status       AppointmentStatus `json:"status"`
	Notes        string            `json:"notes,omitempty"`
	BookingToken string            `json:"bookingToken,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}
