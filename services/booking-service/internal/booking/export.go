package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
)

const exportLimit = 500

// ExportCalendar collects live appointments starting in [from, to) as
// calendar events. An empty staffID exports every staff member.
func (s *Service) ExportCalendar(ctx context.Context, staffID string, from, to time.Time) (calendar.Feed, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return calendar.Feed{}, invalid("range", "start and end are required and end must be after start")
	}
	name := "All staff"
	if staffID != "" {
		st, err := s.requireStaff(ctx, staffID)
		if err != nil {
			return calendar.Feed{}, err
		}
		name = st.Name
	}
	appts, err := s.appts.List(ctx, storage.AppointmentFilter{StaffID: staffID, From: from, To: to, Limit: exportLimit})
	if err != nil {
		return calendar.Feed{}, err
	}

	blockNames := map[string]string{}
	events := make([]calendar.Event, 0, len(appts))
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		block, ok := blockNames[a.TimeBlockID]
		if !ok {
			tb, err := s.catalog.GetTimeBlock(ctx, a.TimeBlockID)
			if err != nil && !storage.IsNotFound(err) {
				return calendar.Feed{}, err
			}
			block = tb.Name
			blockNames[a.TimeBlockID] = block
		}
		summary := a.ClientName
		if block != "" {
			summary += " - " + block
		}
		status := calendar.StatusConfirmed
		if a.Status == model.StatusPending {
			status = calendar.StatusTentative
		}
		events = append(events, calendar.Event{
			UID:         a.ID + "@studiobook",
			Summary:     summary,
			Description: contactLine(a),
			Start:       a.StartTime,
			End:         a.EndTime,
			Status:      status,
		})
	}
	return calendar.Feed{
		ProdID: "-//studiobook//booking//EN",
		Name:   name,
		Stamp:  s.now(),
		Events: events,
	}, nil
}

func contactLine(a model.Appointment) string {
	var out string
	for _, kv := range [][2]string{{"Phone", a.Phone}, {"Email", a.Email}, {"WeChat", a.Wechat}, {"Notes", a.Notes}} {
		if kv[1] == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += kv[0] + ": " + kv[1]
	}
	return out
}
