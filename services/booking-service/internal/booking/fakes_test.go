package booking

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memStore keeps every repository in memory; transactions are ignored.
type memStore struct {
	appts     map[string]model.Appointment
	settings  map[string]model.StaffSettings
	rules     map[string]model.ScheduleRule
	staff     map[string]model.Staff
	blocks    map[string]model.TimeBlock
	tokens    map[string]model.BookingToken
	admins    map[string]model.AdminUser
	idem      map[string]storage.IdempotencyRecord
	studio    *model.Studio
	events    []outbox.Event
	locked    []string
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		appts:    map[string]model.Appointment{},
		settings: map[string]model.StaffSettings{},
		rules:    map[string]model.ScheduleRule{},
		staff:    map[string]model.Staff{},
		blocks:   map[string]model.TimeBlock{},
		tokens:   map[string]model.BookingToken{},
		admins:   map[string]model.AdminUser{},
		idem:     map[string]storage.IdempotencyRecord{},
	}
}

func (m *memStore) LockStaff(_ context.Context, _ pgx.Tx, staffID string) error {
	m.locked = append(m.locked, staffID)
	return nil
}

func (m *memStore) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	if m.createErr != nil {
		return m.createErr
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	m.appts[appt.ID] = *appt
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	return m.Get(ctx, id)
}

func (m *memStore) ListActive(_ context.Context, _ db.Conn, staffID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.sortedAppts() {
		if a.StaffID == staffID && a.Active() && a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.sortedAppts() {
		if f.StaffID != "" && a.StaffID != f.StaffID {
			continue
		}
		if !f.From.IsZero() && a.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.StartTime.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) sortedAppts() []model.Appointment {
	out := make([]model.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *memStore) Update(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	if _, ok := m.appts[appt.ID]; !ok {
		return pgx.ErrNoRows
	}
	appt.UpdatedAt = time.Now()
	m.appts[appt.ID] = *appt
	return nil
}

func (m *memStore) Cancel(_ context.Context, _ pgx.Tx, id string) (time.Time, error) {
	a, ok := m.appts[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	a.Status = model.StatusCancelled
	a.UpdatedAt = time.Now()
	m.appts[id] = a
	return a.UpdatedAt, nil
}

func (m *memStore) CountActiveByTimeBlock(_ context.Context, _ db.Conn, id string) (int, error) {
	n := 0
	for _, a := range m.appts {
		if a.TimeBlockID == id && a.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindCompletedIdempotency(_ context.Context, staffID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := m.idem[staffID+"/"+key]
	return rec, ok && len(rec.ResponsePayload) > 0, nil
}

func (m *memStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, staffID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := m.idem[staffID+"/"+key]
	if ok {
		return rec, true, nil
	}
	rec = storage.IdempotencyRecord{StaffID: staffID, IdempotencyKey: key}
	m.idem[staffID+"/"+key] = rec
	return rec, false, nil
}

func (m *memStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, staffID, key, appointmentID string, statusCode int, response []byte) error {
	m.idem[staffID+"/"+key] = storage.IdempotencyRecord{
		StaffID: staffID, IdempotencyKey: key, AppointmentID: appointmentID,
		StatusCode: statusCode, ResponsePayload: response,
	}
	return nil
}

func (m *memStore) GetOrCreateSettings(ctx context.Context, staffID string) (model.StaffSettings, error) {
	if s, ok := m.settings[staffID]; ok {
		return s, nil
	}
	s := model.DefaultStaffSettings(staffID)
	m.settings[staffID] = s
	return s, nil
}

func (m *memStore) GetSettings(_ context.Context, _ db.Conn, staffID string) (model.StaffSettings, error) {
	s, ok := m.settings[staffID]
	if !ok {
		return model.StaffSettings{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memStore) UpsertSettings(_ context.Context, _ db.Conn, s model.StaffSettings) error {
	m.settings[s.StaffID] = s
	return nil
}

func (m *memStore) ListRules(_ context.Context, _ db.Conn, staffID string) ([]model.ScheduleRule, error) {
	var out []model.ScheduleRule
	for _, r := range m.rules {
		if r.StaffID == staffID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *memStore) GetRule(_ context.Context, id string) (model.ScheduleRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return model.ScheduleRule{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) CreateRule(_ context.Context, r model.ScheduleRule) error {
	m.rules[r.ID] = r
	return nil
}

func (m *memStore) UpdateRule(_ context.Context, r model.ScheduleRule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.rules[r.ID] = r
	return nil
}

func (m *memStore) DeleteRule(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.rules, id)
	return nil
}

func (m *memStore) ListStaff(_ context.Context, activeOnly bool) ([]model.Staff, error) {
	var out []model.Staff
	for _, s := range m.staff {
		if activeOnly && (!s.IsActive || s.IsDefault) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetStaff(_ context.Context, id string) (model.Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return model.Staff{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memStore) GetTemplateStaff(_ context.Context) (model.Staff, error) {
	for _, s := range m.staff {
		if s.IsDefault {
			return s, nil
		}
	}
	return model.Staff{}, pgx.ErrNoRows
}

func (m *memStore) CreateStaff(_ context.Context, _ db.Conn, s *model.Staff) error {
	m.staff[s.ID] = *s
	return nil
}

func (m *memStore) UpdateStaff(_ context.Context, s model.Staff) error {
	if _, ok := m.staff[s.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.staff[s.ID] = s
	return nil
}

func (m *memStore) ListTimeBlocks(_ context.Context, _ db.Conn, staffID string, activeOnly bool) ([]model.TimeBlock, error) {
	var out []model.TimeBlock
	for _, b := range m.blocks {
		if b.StaffID == staffID && (!activeOnly || b.IsActive) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DurationMins < out[j].DurationMins })
	return out, nil
}

func (m *memStore) GetTimeBlock(_ context.Context, id string) (model.TimeBlock, error) {
	b, ok := m.blocks[id]
	if !ok {
		return model.TimeBlock{}, pgx.ErrNoRows
	}
	return b, nil
}

func (m *memStore) CreateTimeBlock(_ context.Context, _ db.Conn, tb model.TimeBlock) error {
	m.blocks[tb.ID] = tb
	return nil
}

func (m *memStore) UpdateTimeBlock(_ context.Context, _ db.Conn, tb model.TimeBlock) error {
	if _, ok := m.blocks[tb.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.blocks[tb.ID] = tb
	return nil
}

func (m *memStore) DeactivateTimeBlocks(_ context.Context, _ db.Conn, staffID string) error {
	for id, b := range m.blocks {
		if b.StaffID == staffID {
			b.IsActive = false
			m.blocks[id] = b
		}
	}
	return nil
}

func (m *memStore) DeleteTimeBlock(_ context.Context, _ db.Conn, id string) error {
	if _, ok := m.blocks[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.blocks, id)
	return nil
}

func (m *memStore) ListTokens(_ context.Context, _ int) ([]model.BookingToken, error) {
	var out []model.BookingToken
	for _, t := range m.tokens {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) GetToken(_ context.Context, _ db.Conn, token string) (model.BookingToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return model.BookingToken{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) CreateToken(_ context.Context, t *model.BookingToken) error {
	t.CreatedAt = time.Now()
	m.tokens[t.Token] = *t
	return nil
}

func (m *memStore) MarkTokenUsed(_ context.Context, _ pgx.Tx, token string, at time.Time) error {
	t, ok := m.tokens[token]
	if !ok || t.UsedAt != nil {
		return pgx.ErrNoRows
	}
	t.UsedAt = &at
	m.tokens[token] = t
	return nil
}

func (m *memStore) DeleteToken(_ context.Context, id string) error {
	for k, t := range m.tokens {
		if t.ID == id {
			delete(m.tokens, k)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memStore) GetAdminUser(_ context.Context, username string) (model.AdminUser, error) {
	u, ok := m.admins[username]
	if !ok {
		return model.AdminUser{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memStore) GetStudio(context.Context) (model.Studio, error) {
	if m.studio == nil {
		return model.Studio{}, pgx.ErrNoRows
	}
	return *m.studio, nil
}

func (m *memStore) SaveStudio(_ context.Context, st *model.Studio) error {
	if st.ID == "" {
		st.ID = "studio-1"
	}
	saved := *st
	m.studio = &saved
	return nil
}

func (m *memStore) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *memStore) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

const (
	staffID   = "staff-1"
	blockID   = "block-60"
	testWeek  = "2026-03-02"
	shanghai  = "Asia/Shanghai"
	jwtSecret = "test-secret"
)

// fixedNow is a Sunday before the test week.
var fixedNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	store *memStore
	mock  pgxmock.PgxPoolIface
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := newMemStore()
	store.staff[staffID] = model.Staff{ID: staffID, Name: "Mia", IsActive: true}
	store.blocks[blockID] = model.TimeBlock{ID: blockID, StaffID: staffID, Name: "Shoot 60", DurationMins: 60, Color: "#FF8800", IsActive: true}
	store.settings[staffID] = model.DefaultStaffSettings(staffID)
	// Monday: 09:00-12:00 AVAILABLE, 12:00-14:00 PENDING_CONFIRM.
	store.rules["r1"] = model.ScheduleRule{ID: "r1", StaffID: staffID, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", SlotType: model.SlotAvailable}
	store.rules["r2"] = model.ScheduleRule{ID: "r2", StaffID: staffID, DayOfWeek: 1, StartTime: "12:00", EndTime: "14:00", SlotType: model.SlotPendingConfirm}

	svc := NewService(Deps{
		DB:             mock,
		Appointments:   store,
		Schedule:       store,
		Catalog:        store,
		Events:         store,
		Metrics:        metrics.NewBookingMetrics(prometheus.NewRegistry()),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		PublicBaseURL:  "https://book.example.com/",
		AdminJWTSecret: jwtSecret,
		Now:            func() time.Time { return fixedNow },
	})
	return &harness{svc: svc, store: store, mock: mock}
}

func (h *harness) expectCommit() {
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
}

func (h *harness) expectRollback() {
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, h.mock.ExpectationsWereMet())
}

// at returns the Shanghai wall-clock instant on the test Monday.
func at(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(shanghai)
	require.NoError(t, err)
	return time.Date(2026, 3, 2, hour, minute, 0, 0, loc)
}

func seedAppointment(s *memStore, id, client string, start time.Time, mins int) model.Appointment {
	a := model.Appointment{
		ID: id, StaffID: staffID, TimeBlockID: blockID, ClientName: client, Phone: "123",
		StartTime: start, EndTime: start.Add(time.Duration(mins) * time.Minute), Status: model.StatusConfirmed,
	}
	s.appts[id] = a
	return a
}
