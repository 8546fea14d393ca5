// Package sweep runs the periodic time-driven transitions: stale pending bookings are
// cancelled, upcoming confirmed bookings are reminded and elapsed ones completed.
package sweep

import (
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
)

type Action string

const (
	ActionCancel   Action = "auto_cancel"
	ActionRemind   Action = "remind"
	ActionComplete Action = "complete"
)

// Pass selects the reservations one action applies to. Match must be pure.
type Pass struct {
	Action Action
	Match  func(r model.Reservation, now time.Time, loc *time.Location, d policy.Deadlines) bool
}

// Passes run in this order within one sweep.
var Passes = []Pass{
	{Action: ActionCancel, Match: ShouldAutoCancel},
	{Action: ActionRemind, Match: ShouldRemind},
	{Action: ActionComplete, Match: ShouldComplete},
}

// ShouldAutoCancel reports whether a PENDIENTE reservation has reached its confirmation
// deadline: PendingLead before the start, or before the start of the first day for ranges.
func ShouldAutoCancel(r model.Reservation, now time.Time, loc *time.Location, d policy.Deadlines) bool {
	if r.State != model.StatePendiente {
		return false
	}
	deadline := r.StartsAt(loc).Add(-d.PendingLead)
	return !now.Before(deadline)
}

// ShouldRemind is true for confirmed bookings not yet reminded that start within
// ReminderLead, or for ranges, that start today.
func ShouldRemind(r model.Reservation, now time.Time, loc *time.Location, d policy.Deadlines) bool {
	if r.State != model.StateConfirmada || r.ReminderSent {
		return false
	}
	if r.ServiceKind == availability.KindRange {
		return availability.DateOf(now.In(loc)) == r.Dates.Start
	}
	start := r.StartsAt(loc)
	return now.Before(start) && start.Sub(now) <= d.ReminderLead
}

// ShouldComplete is true once a confirmed booking's end instant has passed.
func ShouldComplete(r model.Reservation, now time.Time, loc *time.Location, _ policy.Deadlines) bool {
	if r.State != model.StateConfirmada {
		return false
	}
	return !now.Before(r.EndsAt(loc))
}

type Task struct {
	Action        Action
	ReservationID string
	ServiceID     string
}

// Plan evaluates every pass over the same snapshot and returns the work in pass order.
func Plan(snapshot []model.Reservation, now time.Time, loc *time.Location, deadlines func(availability.Kind) policy.Deadlines) []Task {
	var tasks []Task
	for _, pass := range Passes {
		for _, r := range snapshot {
			if pass.Match(r, now, loc, deadlines(r.ServiceKind)) {
				tasks = append(tasks, Task{Action: pass.Action, ReservationID: r.ID, ServiceID: r.ServiceID})
			}
		}
	}
	return tasks
}
