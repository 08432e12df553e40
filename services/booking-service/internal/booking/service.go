package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("studiobook.booking")

type AppointmentStore interface {
	LockStaff(ctx context.Context, tx pgx.Tx, staffID string) error
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	ListActive(ctx context.Context, q db.Conn, staffID string, from, to time.Time) ([]model.Appointment, error)
	List(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	Update(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Cancel(ctx context.Context, tx pgx.Tx, id string) (time.Time, error)
	CountActiveByTimeBlock(ctx context.Context, q db.Conn, timeBlockID string) (int, error)
	FindCompletedIdempotency(ctx context.Context, staffID, key string) (storage.IdempotencyRecord, bool, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, staffID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, staffID, key, appointmentID string, statusCode int, response []byte) error
}

type ScheduleStore interface {
	GetOrCreateSettings(ctx context.Context, staffID string) (model.StaffSettings, error)
	GetSettings(ctx context.Context, q db.Conn, staffID string) (model.StaffSettings, error)
	UpsertSettings(ctx context.Context, q db.Conn, s model.StaffSettings) error
	ListRules(ctx context.Context, q db.Conn, staffID string) ([]model.ScheduleRule, error)
	GetRule(ctx context.Context, id string) (model.ScheduleRule, error)
	CreateRule(ctx context.Context, rule model.ScheduleRule) error
	UpdateRule(ctx context.Context, rule model.ScheduleRule) error
	DeleteRule(ctx context.Context, id string) error
}

type CatalogStore interface {
	ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error)
	GetStaff(ctx context.Context, id string) (model.Staff, error)
	GetTemplateStaff(ctx context.Context) (model.Staff, error)
	CreateStaff(ctx context.Context, q db.Conn, s *model.Staff) error
	UpdateStaff(ctx context.Context, s model.Staff) error
	ListTimeBlocks(ctx context.Context, q db.Conn, staffID string, activeOnly bool) ([]model.TimeBlock, error)
	GetTimeBlock(ctx context.Context, id string) (model.TimeBlock, error)
	CreateTimeBlock(ctx context.Context, q db.Conn, tb model.TimeBlock) error
	UpdateTimeBlock(ctx context.Context, q db.Conn, tb model.TimeBlock) error
	DeactivateTimeBlocks(ctx context.Context, q db.Conn, staffID string) error
	DeleteTimeBlock(ctx context.Context, q db.Conn, id string) error
	ListTokens(ctx context.Context, limit int) ([]model.BookingToken, error)
	GetToken(ctx context.Context, q db.Conn, token string) (model.BookingToken, error)
	CreateToken(ctx context.Context, t *model.BookingToken) error
	MarkTokenUsed(ctx context.Context, tx pgx.Tx, token string, at time.Time) error
	DeleteToken(ctx context.Context, id string) error
	GetAdminUser(ctx context.Context, username string) (model.AdminUser, error)
	GetStudio(ctx context.Context) (model.Studio, error)
	SaveStudio(ctx context.Context, st *model.Studio) error
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type Deps struct {
	DB           db.Beginner
	Appointments AppointmentStore
	Schedule     ScheduleStore
	Catalog      CatalogStore
	Events       EventWriter
	Metrics      *metrics.BookingMetrics
	Logger       *slog.Logger
	// PublicBaseURL prefixes booking links handed out with tokens.
	PublicBaseURL  string
	AdminJWTSecret string
	AdminTokenTTL  time.Duration
	Now            func() time.Time
}

// Service runs every read-validate-write sequence of the studio's booking flows.
type Service struct {
	db            db.Beginner
	appts         AppointmentStore
	schedule      ScheduleStore
	catalog       CatalogStore
	events        EventWriter
	metrics       *metrics.BookingMetrics
	logger        *slog.Logger
	publicBaseURL string
	jwtSecret     string
	tokenTTL      time.Duration
	now           func() time.Time
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.AdminTokenTTL <= 0 {
		d.AdminTokenTTL = 12 * time.Hour
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		db:            d.DB,
		appts:         d.Appointments,
		schedule:      d.Schedule,
		catalog:       d.Catalog,
		events:        d.Events,
		metrics:       d.Metrics,
		logger:        d.Logger,
		publicBaseURL: strings.TrimRight(d.PublicBaseURL, "/"),
		jwtSecret:     d.AdminJWTSecret,
		tokenTTL:      d.AdminTokenTTL,
		now:           d.Now,
	}
}

func (s *Service) recordEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt, s.now())
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, evt)
}
