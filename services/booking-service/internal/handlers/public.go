package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/booking"
)

func (h *Handler) PublicStudio(w http.ResponseWriter, r *http.Request) {
	studio, err := h.svc.PublicStudio(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studio)
}

func (h *Handler) PublicStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.ListStaff(r.Context(), false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *Handler) PublicTimeBlocks(w http.ResponseWriter, r *http.Request) {
	staffID := strings.TrimSpace(r.URL.Query().Get("staffId"))
	if staffID == "" {
		writeErrorCode(w, http.StatusBadRequest, codeValidation, "staffId is required")
		return
	}
	blocks, err := h.svc.ListTimeBlocks(r.Context(), staffID, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// Slots serves the weekly grid. Availability changes with every booking, so
// responses are never cached.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	staffID := strings.TrimSpace(q.Get("staffId"))
	weekStart := strings.TrimSpace(q.Get("weekStart"))
	if staffID == "" || weekStart == "" {
		writeErrorCode(w, http.StatusBadRequest, codeValidation, "staffId and weekStart are required")
		return
	}
	grid, err := h.svc.WeekGrid(r.Context(), staffID, weekStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, grid)
}

type bookRequest struct {
	StaffID      string `json:"staffId"`
	TimeBlockID  string `json:"timeBlockId"`
	StartTime    string `json:"startTime"`
	ClientName   string `json:"clientName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Wechat       string `json:"wechat"`
	BookingToken string `json:"bookingToken"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "must be RFC3339", Field: "startTime"})
		return
	}

	res, err := h.svc.Book(r.Context(), booking.BookRequest{
		StaffID:        strings.TrimSpace(req.StaffID),
		TimeBlockID:    strings.TrimSpace(req.TimeBlockID),
		StartTime:      start,
		ClientName:     req.ClientName,
		Phone:          req.Phone,
		Email:          req.Email,
		Wechat:         req.Wechat,
		BookingToken:   req.BookingToken,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replay", "true")
	}
	writeJSON(w, http.StatusCreated, res.Appointment)
}

func (h *Handler) LookupToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.svc.LookupToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
