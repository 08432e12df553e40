package availability

import (
	"time"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

// ResolveStatus decides the initial status of a booking from the rule
// classification at its start minute only. A window that begins AVAILABLE and
// runs into PENDING_CONFIRM is still confirmed.
func ResolveStatus(start time.Time, loc *time.Location, rules RuleSet) model.AppointmentStatus {
	local := start.In(loc)
	if rules.Resolve(int(local.Weekday()), MinuteOfDay(local)) == model.SlotPendingConfirm {
		return model.StatusPending
	}
	return model.StatusConfirmed
}
