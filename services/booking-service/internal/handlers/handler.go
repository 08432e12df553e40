package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// Service is the booking service surface the HTTP API drives.
type Service interface {
	WeekGrid(ctx context.Context, staffID, weekStart string) (booking.WeekGrid, error)
	Book(ctx context.Context, req booking.BookRequest) (booking.BookResult, error)

	ListAppointments(ctx context.Context, q booking.ListAppointmentsQuery) ([]model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, req booking.UpdateAppointmentRequest) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (model.Appointment, error)

	GetSettings(ctx context.Context, staffID string) (model.StaffSettings, error)
	UpdateSettings(ctx context.Context, staffID string, patch booking.SettingsPatch) (model.StaffSettings, error)
	ListRules(ctx context.Context, staffID string) (booking.RulesResult, error)
	CreateRule(ctx context.Context, rule model.ScheduleRule) (model.ScheduleRule, booking.RulesResult, error)
	UpdateRule(ctx context.Context, rule model.ScheduleRule) (model.ScheduleRule, booking.RulesResult, error)
	DeleteRule(ctx context.Context, id string) error

	ListStaff(ctx context.Context, includeInactive bool) ([]model.Staff, error)
	CreateStaff(ctx context.Context, in booking.StaffInput) (model.Staff, error)
	UpdateStaff(ctx context.Context, id string, in booking.StaffInput) (model.Staff, error)
	DeactivateStaff(ctx context.Context, id string) error
	RestoreDefaults(ctx context.Context, staffID string) (model.StaffSettings, error)
	RestoreTimeBlocks(ctx context.Context, staffID string) ([]model.TimeBlock, error)

	ListTimeBlocks(ctx context.Context, staffID string, includeInactive bool) ([]model.TimeBlock, error)
	CreateTimeBlock(ctx context.Context, tb model.TimeBlock) (model.TimeBlock, error)
	UpdateTimeBlock(ctx context.Context, id string, p booking.TimeBlockPatch) (model.TimeBlock, error)
	DeleteTimeBlock(ctx context.Context, id string) (bool, error)

	ListTokens(ctx context.Context) ([]booking.IssuedToken, error)
	CreateToken(ctx context.Context, in booking.TokenInput) (booking.IssuedToken, error)
	DeleteToken(ctx context.Context, id string) error
	LookupToken(ctx context.Context, token string) (model.BookingToken, error)

	PublicStudio(ctx context.Context) (model.Studio, error)
	GetStudio(ctx context.Context) (model.Studio, error)
	UpdateStudio(ctx context.Context, patch booking.StudioPatch) (model.Studio, error)

	Login(ctx context.Context, username, password string) (booking.Session, error)
	ExportCalendar(ctx context.Context, staffID string, from, to time.Time) (calendar.Feed, error)
}

var _ Service = (*booking.Service)(nil)

type Handler struct {
	svc       Service
	logger    *slog.Logger
	jwtSecret string
}

func NewHandler(svc Service, logger *slog.Logger, jwtSecret string) *Handler {
	return &Handler{svc: svc, logger: logger, jwtSecret: jwtSecret}
}

// Router mounts the public and admin APIs under /api/v1. publicLimit, when
// set, wraps the public routes only.
func (h *Handler) Router(publicLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/public", func(pub chi.Router) {
			if publicLimit != nil {
				pub.Use(publicLimit)
			}
			pub.Get("/studio", h.PublicStudio)
			pub.Get("/staff", h.PublicStaff)
			pub.Get("/time-blocks", h.PublicTimeBlocks)
			pub.Get("/slots", h.Slots)
			pub.Post("/appointments", h.Book)
			pub.Get("/booking-tokens/{token}", h.LookupToken)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Post("/login", h.Login)

			admin.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)

				r.Get("/appointments", h.ListAppointments)
				r.Patch("/appointments/{id}", h.UpdateAppointment)
				r.Delete("/appointments/{id}", h.CancelAppointment)

				r.Get("/studio", h.GetStudio)
				r.Put("/studio", h.UpdateStudio)

				r.Get("/staff", h.AdminStaff)
				r.Post("/staff", h.CreateStaff)
				r.Route("/staff/{staffID}", func(st chi.Router) {
					st.Put("/", h.UpdateStaff)
					st.Delete("/", h.DeactivateStaff)
					st.Get("/settings", h.GetSettings)
					st.Put("/settings", h.UpdateSettings)
					st.Get("/rules", h.ListRules)
					st.Post("/rules", h.CreateRule)
					st.Get("/time-blocks", h.AdminTimeBlocks)
					st.Post("/time-blocks", h.CreateTimeBlock)
					st.Post("/restore-defaults", h.RestoreDefaults)
					st.Post("/restore-time-blocks", h.RestoreTimeBlocks)
				})

				r.Put("/rules/{id}", h.UpdateRule)
				r.Delete("/rules/{id}", h.DeleteRule)
				r.Put("/time-blocks/{id}", h.UpdateTimeBlock)
				r.Delete("/time-blocks/{id}", h.DeleteTimeBlock)

				r.Get("/booking-tokens", h.ListTokens)
				r.Post("/booking-tokens", h.CreateToken)
				r.Delete("/booking-tokens/{id}", h.DeleteToken)

				r.Get("/export/ics", h.ExportICS)
			})
		})
	})
	return r
}

type conflictBody struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	ClientName string    `json:"clientName"`
}

func newConflictBody(c *availability.ConflictError) conflictBody {
	return conflictBody{
		StartTime:  c.Appointment.StartTime.UTC(),
		EndTime:    c.Appointment.EndTime.UTC(),
		ClientName: c.Appointment.ClientName,
	}
}
