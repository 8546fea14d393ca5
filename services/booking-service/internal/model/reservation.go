package model

import (
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
)

type State string

const (
	StatePendiente  State = "PENDIENTE"
	StateConfirmada State = "CONFIRMADA"
	StateCancelada  State = "CANCELADA"
	StateCompletada State = "COMPLETADA"
)

var validTransitions = map[State][]State{
	StatePendiente:  {StateConfirmada, StateCancelada},
	StateConfirmada: {StateCancelada, StateCompletada},
}

func ParseState(raw string) (State, bool) {
	switch s := State(raw); s {
	case StatePendiente, StateConfirmada, StateCancelada, StateCompletada:
		return s, true
	default:
		return "", false
	}
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool { return s == StateCancelada || s == StateCompletada }

// HoldsCapacity reports whether a reservation in this state occupies its slot or range.
// Completed bookings keep their consumption as history.
func (s State) HoldsCapacity() bool { return s != StateCancelada }

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleSystem   Role = "system"
)

func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleClient, RoleProvider:
		return r, true
	default:
		return "", false
	}
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Reservation struct {
	ID              string
	ClientID        string
	PetID           string
	ServiceID       string
	ProviderID      string
	ServiceKind     availability.Kind
	ServiceName     string
	Dates           availability.DateRange
	TimeOfDay       *availability.TimeOfDay
	DurationMinutes int
	State           State
	Contact         Contact
	Note            string
	ReminderSent    bool
	CancelReason    string
	CancelledBy     Role
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CompletedAt     *time.Time
	Version         int64
}

// Candidate is the ledger entry this reservation holds.
func (r Reservation) Candidate() availability.Candidate {
	if r.ServiceKind.UsesTimeOfDay() && r.TimeOfDay != nil {
		return availability.TimeSlot{Date: r.Dates.Start, Time: *r.TimeOfDay}
	}
	return r.Dates
}

// StartsAt is the booked time on the start day, or the start of that day for ranges.
func (r Reservation) StartsAt(loc *time.Location) time.Time {
	if r.TimeOfDay != nil {
		return r.Dates.Start.At(*r.TimeOfDay, loc)
	}
	return r.Dates.Start.StartOfDay(loc)
}

// EndsAt is start plus duration for time-of-day bookings and the end of the last day for ranges.
func (r Reservation) EndsAt(loc *time.Location) time.Time {
	if r.TimeOfDay != nil {
		return r.StartsAt(loc).Add(time.Duration(r.DurationMinutes) * time.Minute)
	}
	return r.Dates.End.EndOfDay(loc)
}

// ReservationFilter selects reservations; empty fields match everything.
type ReservationFilter struct {
	ClientID   string
	ProviderID string
	ServiceID  string
	States     []State
	Limit      int
	Offset     int
}

func (f ReservationFilter) Matches(r Reservation) bool {
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.ProviderID != "" && r.ProviderID != f.ProviderID {
		return false
	}
	if f.ServiceID != "" && r.ServiceID != f.ServiceID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if r.State == s {
			return true
		}
	}
	return false
}

type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }
