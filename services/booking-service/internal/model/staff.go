package model

import "time"

type SlotType string

const (
	SlotAvailable      SlotType = "AVAILABLE"
	SlotPendingConfirm SlotType = "PENDING_CONFIRM"
	SlotUnavailable    SlotType = "UNAVAILABLE"
	// SlotBooked only appears in computed grids, never on a rule.
	SlotBooked SlotType = "BOOKED"
)

const (
	DefaultTimezone          = "Asia/Shanghai"
	DefaultBookingInterval   = 15
	DefaultCalendarStartHour = 8
	DefaultCalendarEndHour   = 22
)

type Staff struct {
	ID        string         `json:"id"`
	StudioID  string         `json:"studioId"`
	Name      string         `json:"name"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	IsActive  bool           `json:"isActive"`
	IsDefault bool           `json:"isDefault"`
	Settings  *StaffSettings `json:"settings,omitempty"`
}

type StaffSettings struct {
	StaffID           string     `json:"staffId"`
	Timezone          string     `json:"timezone"`
	BookingInterval   int        `json:"bookingInterval"`
	BufferMinutes     int        `json:"bufferMinutes"`
	OpenUntil         *time.Time `json:"openUntil"`
	CalendarStartHour int        `json:"calendarStartHour"`
	CalendarEndHour   int        `json:"calendarEndHour"`
}

func DefaultStaffSettings(staffID string) StaffSettings {
	return StaffSettings{
		StaffID:           staffID,
		Timezone:          DefaultTimezone,
		BookingInterval:   DefaultBookingInterval,
		BufferMinutes:     0,
		CalendarStartHour: DefaultCalendarStartHour,
		CalendarEndHour:   DefaultCalendarEndHour,
	}
}

type ScheduleRule struct {
	ID        string   `json:"id"`
	StaffID   string   `json:"staffId"`
	DayOfWeek int      `json:"dayOfWeek"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	SlotType  SlotType `json:"slotType"`
}

type TimeBlock struct {
	ID           string `json:"id"`
	StaffID      string `json:"staffId"`
	Name         string `json:"name"`
	DurationMins int    `json:"durationMins"`
	Color        string `json:"color"`
	IsActive     bool   `json:"isActive"`
}

type BookingToken struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	StaffID     string     `json:"staffId,omitempty"`
	TimeBlockID string     `json:"timeBlockId,omitempty"`
	ClientName  string     `json:"clientName,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Wechat      string     `json:"wechat,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	UsedAt      *time.Time `json:"usedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Usable reports whether the token can still prefill or back a booking at now.
func (t BookingToken) Usable(now time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
}
