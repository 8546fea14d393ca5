package availability

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAppointment  Kind = "appointment"
	KindCapacitySlot Kind = "capacity_slot"
	KindRange        Kind = "range"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindAppointment, KindCapacitySlot, KindRange:
		return k, nil
	default:
		return "", fmt.Errorf("unknown service kind %q", raw)
	}
}

// UsesTimeOfDay reports whether bookings of this kind carry a time of day.
func (k Kind) UsesTimeOfDay() bool { return k == KindAppointment || k == KindCapacitySlot }

var (
	ErrUnavailable  = errors.New("availability: not available")
	ErrShape        = errors.New("availability: candidate does not match service kind")
	ErrInvalidRules = errors.New("availability: invalid rules")
)

// Candidate is either a TimeSlot or a DateRange.
type Candidate interface {
	candidate()
}

// TimeSlot is a single date plus time of day.
type TimeSlot struct {
	Date Date
	Time TimeOfDay
}

func (TimeSlot) candidate() {}

func (s TimeSlot) String() string { return s.Date.String() + " " + s.Time.String() }

// DateRange is an inclusive span of days.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

func (DateRange) candidate() {}

func NewDateRange(start, end Date) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("range end %s is before start %s", end, start)
	}
	return DateRange{Start: start, End: end}, nil
}

// Overlaps treats both ends as inclusive, so ranges sharing a boundary day collide.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !r.End.Before(o.Start)
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string { return r.Start.String() + ".." + r.End.String() }

// Ledger records consumed capacity for one service. Implementations are not safe for
// concurrent use; callers serialize access per service.
type Ledger interface {
	Kind() Kind
	IsAvailable(c Candidate) bool
	// Consume records a booking and fails with ErrUnavailable when IsAvailable would be false.
	Consume(c Candidate) error
	// Release undoes one Consume. Releasing something never consumed is a no-op.
	Release(c Candidate)
	// Reset drops every consumption and keeps the rules.
	Reset()
	Clone() Ledger
}

// Rules are the provider-declared availability settings a ledger is built from.
type Rules struct {
	Days        Weekdays
	Times       []TimeOfDay
	MaxCapacity int
}

func New(kind Kind, rules Rules) (Ledger, error) {
	if rules.Days == 0 {
		return nil, fmt.Errorf("%w: at least one available weekday is required", ErrInvalidRules)
	}
	switch kind {
	case KindAppointment:
		sched, err := newSchedule(rules)
		if err != nil {
			return nil, err
		}
		return &AppointmentLedger{schedule: sched, consumed: map[Date]map[TimeOfDay]struct{}{}}, nil
	case KindCapacitySlot:
		sched, err := newSchedule(rules)
		if err != nil {
			return nil, err
		}
		capacity := rules.MaxCapacity
		if capacity == 0 {
			capacity = 1
		}
		if capacity < 0 {
			return nil, fmt.Errorf("%w: max capacity must be at least 1", ErrInvalidRules)
		}
		return &CapacityLedger{schedule: sched, maxCapacity: capacity, consumed: map[Date]map[TimeOfDay]int{}}, nil
	case KindRange:
		if len(rules.Times) > 0 {
			return nil, fmt.Errorf("%w: range services do not take times of day", ErrInvalidRules)
		}
		return &RangeLedger{days: rules.Days}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRules, kind)
	}
}

// RulesOf reports the rules a ledger was created with.
func RulesOf(l Ledger) Rules {
	switch v := l.(type) {
	case *AppointmentLedger:
		return Rules{Days: v.schedule.days, Times: v.schedule.Times()}
	case *CapacityLedger:
		return Rules{Days: v.schedule.days, Times: v.schedule.Times(), MaxCapacity: v.maxCapacity}
	case *RangeLedger:
		return Rules{Days: v.days}
	default:
		return Rules{}
	}
}
