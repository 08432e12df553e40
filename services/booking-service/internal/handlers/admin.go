package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseInstant(q.Get("start"), false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339 or YYYY-MM-DD", Field: "start"})
		return
	}
	to, err := parseInstant(q.Get("end"), true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339 or YYYY-MM-DD", Field: "end"})
		return
	}
	limit := defaultAppointmentPage
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	appts, err := h.svc.ListAppointments(r.Context(), booking.ListAppointmentsQuery{
		StaffID: strings.TrimSpace(q.Get("staffId")),
		From:    from,
		To:      to,
		Limit:   limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

type updateAppointmentRequest struct {
	StartTime   *string `json:"startTime"`
	TimeBlockID *string `json:"timeBlockId"`
	Status      *string `json:"status"`
	Notes       *string `json:"notes"`
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var upd booking.UpdateAppointmentRequest
	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.StartTime))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339", Field: "startTime"})
			return
		}
		upd.StartTime = &start
	}
	if req.TimeBlockID != nil {
		id := strings.TrimSpace(*req.TimeBlockID)
		upd.TimeBlockID = &id
	}
	if req.Status != nil {
		status := model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		upd.Status = &status
	}
	upd.Notes = req.Notes

	appt, err := h.svc.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.CancelAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) AdminStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.ListStaff(r.Context(), true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

type staffRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
	IsActive  *bool   `json:"isActive"`
}

func (s staffRequest) input() booking.StaffInput {
	return booking.StaffInput{Name: s.Name, AvatarURL: s.AvatarURL, IsActive: s.IsActive}
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.CreateStaff(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.UpdateStaff(r.Context(), chi.URLParam(r, "staffID"), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) DeactivateStaff(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateStaff(r.Context(), chi.URLParam(r, "staffID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreDefaults(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.RestoreDefaults(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) RestoreTimeBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.svc.RestoreTimeBlocks(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []model.TimeBlock{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	Timezone          *string         `json:"timezone"`
	BookingInterval   *int            `json:"bookingInterval"`
	BufferMinutes     *int            `json:"bufferMinutes"`
	OpenUntil         json.RawMessage `json:"openUntil"`
	CalendarStartHour *int            `json:"calendarStartHour"`
	CalendarEndHour   *int            `json:"calendarEndHour"`
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := booking.SettingsPatch{
		Timezone:          req.Timezone,
		BookingInterval:   req.BookingInterval,
		BufferMinutes:     req.BufferMinutes,
		CalendarStartHour: req.CalendarStartHour,
		CalendarEndHour:   req.CalendarEndHour,
	}
	switch raw := bytes.TrimSpace(req.OpenUntil); {
	case len(raw) == 0:
	case string(raw) == "null":
		patch.ClearOpenUntil = true
	default:
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339 or null", Field: "openUntil"})
			return
		}
		patch.OpenUntil = &t
	}

	settings, err := h.svc.UpdateSettings(r.Context(), chi.URLParam(r, "staffID"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) GetStudio(w http.ResponseWriter, r *http.Request) {
	studio, err := h.svc.GetStudio(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studio)
}

type studioRequest struct {
	Name       *string         `json:"name"`
	LogoURL    json.RawMessage `json:"logoUrl"`
	BrandColor json.RawMessage `json:"brandColor"`
}

// nullableString decodes a field that may be absent, null or a string.
func nullableString(raw json.RawMessage) (val *string, clear bool, err error) {
	switch raw = bytes.TrimSpace(raw); {
	case len(raw) == 0:
		return nil, false, nil
	case string(raw) == "null":
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, false, nil
}

func (h *Handler) UpdateStudio(w http.ResponseWriter, r *http.Request) {
	var req studioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := booking.StudioPatch{Name: req.Name}
	var err error
	if patch.LogoURL, patch.ClearLogo, err = nullableString(req.LogoURL); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be a string or null", Field: "logoUrl"})
		return
	}
	if patch.BrandColor, patch.ResetBrandColor, err = nullableString(req.BrandColor); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be a string or null", Field: "brandColor"})
		return
	}

	studio, err := h.svc.UpdateStudio(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studio)
}

type ruleRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	SlotType  string `json:"slotType"`
}

func (req ruleRequest) rule() model.ScheduleRule {
	return model.ScheduleRule{
		DayOfWeek: req.DayOfWeek,
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
		SlotType:  model.SlotType(strings.ToUpper(strings.TrimSpace(req.SlotType))),
	}
}

type ruleResponse struct {
	Rule     model.ScheduleRule         `json:"rule"`
	Warnings []availability.RuleOverlap `json:"warnings"`
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListRules(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rule := req.rule()
	rule.StaffID = chi.URLParam(r, "staffID")
	created, res, err := h.svc.CreateRule(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ruleResponse{Rule: created, Warnings: res.Warnings})
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rule := req.rule()
	rule.ID = chi.URLParam(r, "id")
	updated, res, err := h.svc.UpdateRule(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{Rule: updated, Warnings: res.Warnings})
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminTimeBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.svc.ListTimeBlocks(r.Context(), chi.URLParam(r, "staffID"), true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

type timeBlockRequest struct {
	Name         *string `json:"name"`
	DurationMins *int    `json:"durationMins"`
	Color        *string `json:"color"`
	IsActive     *bool   `json:"isActive"`
}

func (h *Handler) CreateTimeBlock(w http.ResponseWriter, r *http.Request) {
	var req timeBlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tb := model.TimeBlock{StaffID: chi.URLParam(r, "staffID")}
	if req.Name != nil {
		tb.Name = *req.Name
	}
	if req.DurationMins != nil {
		tb.DurationMins = *req.DurationMins
	}
	if req.Color != nil {
		tb.Color = strings.TrimSpace(*req.Color)
	}
	created, err := h.svc.CreateTimeBlock(r.Context(), tb)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateTimeBlock(w http.ResponseWriter, r *http.Request) {
	var req timeBlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateTimeBlock(r.Context(), chi.URLParam(r, "id"), booking.TimeBlockPatch{
		Name:         req.Name,
		DurationMins: req.DurationMins,
		Color:        req.Color,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type deleteTimeBlockResponse struct {
	Deleted     bool   `json:"deleted"`
	Deactivated bool   `json:"deactivated"`
	Warning     string `json:"warning,omitempty"`
}

func (h *Handler) DeleteTimeBlock(w http.ResponseWriter, r *http.Request) {
	deactivated, err := h.svc.DeleteTimeBlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := deleteTimeBlockResponse{Deleted: !deactivated, Deactivated: deactivated}
	if deactivated {
		resp.Warning = "time block is used by existing appointments and was deactivated instead"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.svc.ListTokens(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type tokenRequest struct {
	StaffID     string     `json:"staffId"`
	TimeBlockID string     `json:"timeBlockId"`
	ClientName  string     `json:"clientName"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	Wechat      string     `json:"wechat"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issued, err := h.svc.CreateToken(r.Context(), booking.TokenInput{
		StaffID:     strings.TrimSpace(req.StaffID),
		TimeBlockID: strings.TrimSpace(req.TimeBlockID),
		ClientName:  req.ClientName,
		Phone:       req.Phone,
		Email:       req.Email,
		Wechat:      req.Wechat,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteToken(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseInstant(q.Get("start"), false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339 or YYYY-MM-DD", Field: "start"})
		return
	}
	to, err := parseInstant(q.Get("end"), true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339 or YYYY-MM-DD", Field: "end"})
		return
	}
	feed, err := h.svc.ExportCalendar(r.Context(), strings.TrimSpace(q.Get("staffId")), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := calendar.Write(&buf, feed); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
