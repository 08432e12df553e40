package booking

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/studiobook/libs/auth"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRescheduleExcludesItselfButNotOthers(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)
	seedAppointment(h.store, "a2", "Bo", at(t, 11, 0), 60)

	h.expectCommit()
	moved, err := h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{StartTime: ptr(at(t, 9, 30))})
	require.NoError(t, err)
	assert.True(t, moved.EndTime.Equal(at(t, 10, 30)))
	assert.Equal(t, []string{outbox.EventAppointmentRescheduled}, h.store.eventTypes())

	h.expectRollback()
	_, err = h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{StartTime: ptr(at(t, 10, 15))})
	var conflict *availability.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Bo", conflict.Appointment.ClientName)
	assert.True(t, h.store.appts["a1"].StartTime.Equal(at(t, 9, 30)))
	h.verify(t)
}

func TestRescheduleSkipsWorkingHours(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)
	h.expectCommit()

	moved, err := h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{StartTime: ptr(at(t, 20, 0))})
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(at(t, 20, 0)))
	h.verify(t)
}

func TestChangingTimeBlockRecomputesEnd(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)
	h.store.blocks["block-30"] = model.TimeBlock{ID: "block-30", StaffID: staffID, Name: "Mini", DurationMins: 30, Color: "#000000", IsActive: true}
	h.expectCommit()

	updated, err := h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{TimeBlockID: ptr("block-30")})
	require.NoError(t, err)
	assert.True(t, updated.EndTime.Equal(at(t, 10, 30)))
	assert.Equal(t, "block-30", updated.TimeBlockID)
	h.verify(t)
}

func TestStatusChangeAndCancellationIsTerminal(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)

	h.expectCommit()
	updated, err := h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{Status: ptr(model.StatusPending), Notes: ptr(" call first ")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, updated.Status)
	assert.Equal(t, "call first", updated.Notes)

	h.expectCommit()
	cancelled, err := h.svc.CancelAppointment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	h.expectRollback()
	_, err = h.svc.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{Status: ptr(model.StatusConfirmed)})
	assert.ErrorIs(t, err, ErrAppointmentCancelled)

	assert.Equal(t, []string{outbox.EventAppointmentPending, outbox.EventAppointmentCancelled}, h.store.eventTypes())
	h.verify(t)
}

func TestUpdateUnknownAppointment(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.UpdateAppointment(context.Background(), "nope", UpdateAppointmentRequest{Notes: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSettingsValidatesMergedResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.UpdateSettings(ctx, staffID, SettingsPatch{BookingInterval: ptr(20)})
	assert.True(t, IsValidation(err))

	_, err = h.svc.UpdateSettings(ctx, staffID, SettingsPatch{CalendarStartHour: ptr(23)})
	assert.True(t, IsValidation(err))

	_, err = h.svc.UpdateSettings(ctx, staffID, SettingsPatch{Timezone: ptr("Mars/Olympus")})
	assert.True(t, IsValidation(err))

	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s, err := h.svc.UpdateSettings(ctx, staffID, SettingsPatch{
		CalendarStartHour: ptr(23),
		CalendarEndHour:   ptr(24),
		BufferMinutes:     ptr(10),
		OpenUntil:         &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, 23, s.CalendarStartHour)
	assert.Equal(t, 10, h.store.settings[staffID].BufferMinutes)
	require.NotNil(t, s.OpenUntil)

	s, err = h.svc.UpdateSettings(ctx, staffID, SettingsPatch{ClearOpenUntil: true})
	require.NoError(t, err)
	assert.Nil(t, s.OpenUntil)
}

func TestCreateRuleReportsOverlaps(t *testing.T) {
	h := newHarness(t)

	rule, res, err := h.svc.CreateRule(context.Background(), model.ScheduleRule{
		StaffID: staffID, DayOfWeek: 1, StartTime: "11:00", EndTime: "13:00", SlotType: model.SlotUnavailable,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.Len(t, res.Rules, 3)
	assert.Len(t, res.Warnings, 2)

	_, _, err = h.svc.CreateRule(context.Background(), model.ScheduleRule{
		StaffID: staffID, DayOfWeek: 1, StartTime: "09:10", EndTime: "10:00", SlotType: model.SlotAvailable,
	})
	assert.True(t, IsValidation(err))

	assert.ErrorIs(t, h.svc.DeleteRule(context.Background(), "missing"), ErrNotFound)
}

func TestDeleteTimeBlockInUseDeactivates(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)

	deactivated, err := h.svc.DeleteTimeBlock(context.Background(), blockID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.False(t, h.store.blocks[blockID].IsActive)

	tb, err := h.svc.CreateTimeBlock(context.Background(), model.TimeBlock{StaffID: staffID, Name: "Quick", DurationMins: 15, Color: "#00aa00"})
	require.NoError(t, err)
	deactivated, err = h.svc.DeleteTimeBlock(context.Background(), tb.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	assert.NotContains(t, h.store.blocks, tb.ID)

	_, err = h.svc.CreateTimeBlock(context.Background(), model.TimeBlock{StaffID: staffID, Name: "Bad", DurationMins: 15, Color: "orange"})
	assert.True(t, IsValidation(err))
}

func TestCreateStaffCopiesTemplate(t *testing.T) {
	h := newHarness(t)
	h.store.staff["tmpl"] = model.Staff{ID: "tmpl", Name: "Template", IsDefault: true}
	tmplSettings := model.DefaultStaffSettings("tmpl")
	tmplSettings.BufferMinutes = 10
	h.store.settings["tmpl"] = tmplSettings
	h.store.blocks["tb1"] = model.TimeBlock{ID: "tb1", StaffID: "tmpl", Name: "Portrait", DurationMins: 45, Color: "#111111", IsActive: true}
	h.store.blocks["tb2"] = model.TimeBlock{ID: "tb2", StaffID: "tmpl", Name: "Old", DurationMins: 90, Color: "#222222"}
	h.expectCommit()

	st, err := h.svc.CreateStaff(context.Background(), StaffInput{Name: ptr(" Kai ")})
	require.NoError(t, err)
	assert.Equal(t, "Kai", st.Name)
	assert.True(t, st.IsActive)
	assert.Equal(t, 10, h.store.settings[st.ID].BufferMinutes)

	blocks, err := h.svc.ListTimeBlocks(context.Background(), st.ID, true)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Portrait", blocks[0].Name)

	staff, err := h.svc.ListStaff(context.Background(), true)
	require.NoError(t, err)
	for _, s := range staff {
		assert.False(t, s.IsDefault)
		assert.NotNil(t, s.Settings)
	}
	assert.Len(t, staff, 2)

	require.NoError(t, h.svc.DeactivateStaff(context.Background(), st.ID))
	public, err := h.svc.ListStaff(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, public, 1)
	h.verify(t)
}

func TestRestoreTimeBlocksWithoutTemplate(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RestoreTimeBlocks(context.Background(), staffID)
	assert.ErrorIs(t, err, ErrTemplateMissing)
}

func TestBookingTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	issued, err := h.svc.CreateToken(ctx, TokenInput{StaffID: staffID, TimeBlockID: blockID, ClientName: "Lin"})
	require.NoError(t, err)
	assert.Equal(t, "https://book.example.com/book/"+issued.Token, issued.URL)
	assert.Len(t, issued.Token, 24)

	got, err := h.svc.LookupToken(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "Lin", got.ClientName)

	used := fixedNow
	tok := h.store.tokens[issued.Token]
	tok.UsedAt = &used
	h.store.tokens[issued.Token] = tok
	_, err = h.svc.LookupToken(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = h.svc.LookupToken(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	past := fixedNow.Add(-time.Hour)
	_, err = h.svc.CreateToken(ctx, TokenInput{ExpiresAt: &past})
	assert.True(t, IsValidation(err))

	require.NoError(t, h.svc.DeleteToken(ctx, issued.ID))
	assert.ErrorIs(t, h.svc.DeleteToken(ctx, issued.ID), ErrNotFound)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	h.store.admins["admin"] = model.AdminUser{ID: "u1", Username: "admin", PasswordHash: hash}

	sess, err := h.svc.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, sess.ExpiresAt.Equal(fixedNow.Add(12*time.Hour)))

	_, err = h.svc.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = h.svc.Login(context.Background(), "ghost", "s3cret")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestExportCalendar(t *testing.T) {
	h := newHarness(t)
	seedAppointment(h.store, "a1", "Ann", at(t, 10, 0), 60)
	pending := seedAppointment(h.store, "a2", "Bo", at(t, 12, 0), 60)
	pending.Status = model.StatusPending
	h.store.appts["a2"] = pending
	gone := seedAppointment(h.store, "a3", "Cy", at(t, 9, 0), 60)
	gone.Status = model.StatusCancelled
	h.store.appts["a3"] = gone

	feed, err := h.svc.ExportCalendar(context.Background(), staffID, at(t, 0, 0), at(t, 23, 0))
	require.NoError(t, err)
	assert.Equal(t, "Mia", feed.Name)
	require.Len(t, feed.Events, 2)
	assert.Equal(t, "Ann - Shoot 60", feed.Events[0].Summary)
	assert.Equal(t, calendar.StatusConfirmed, feed.Events[0].Status)
	assert.Equal(t, calendar.StatusTentative, feed.Events[1].Status)

	_, err = h.svc.ExportCalendar(context.Background(), staffID, at(t, 10, 0), at(t, 9, 0))
	assert.True(t, IsValidation(err))
}
