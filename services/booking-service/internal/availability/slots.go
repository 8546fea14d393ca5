package availability

import "fmt"

type schedule struct {
	days  Weekdays
	times []TimeOfDay
	index map[TimeOfDay]struct{}
}

func newSchedule(rules Rules) (schedule, error) {
	times := NormalizeTimes(rules.Times)
	if len(times) == 0 {
		return schedule{}, fmt.Errorf("%w: at least one time of day is required", ErrInvalidRules)
	}
	for _, t := range times {
		if t < 0 || t >= 24*60 {
			return schedule{}, fmt.Errorf("%w: time %d out of range", ErrInvalidRules, int(t))
		}
	}
	return makeSchedule(rules.Days, times), nil
}

func makeSchedule(days Weekdays, times []TimeOfDay) schedule {
	index := make(map[TimeOfDay]struct{}, len(times))
	for _, t := range times {
		index[t] = struct{}{}
	}
	return schedule{days: days, times: times, index: index}
}

func (s schedule) offers(slot TimeSlot) bool {
	if !s.days.Has(slot.Date.Weekday()) {
		return false
	}
	_, ok := s.index[slot.Time]
	return ok
}

func (s schedule) Times() []TimeOfDay { return append([]TimeOfDay(nil), s.times...) }

// Opening is one offered time on a day with the capacity still left.
type Opening struct {
	Time      TimeOfDay `json:"time"`
	Remaining int       `json:"remaining"`
}

// SlotLedger is implemented by the two time-of-day ledgers.
type SlotLedger interface {
	Ledger
	Openings(d Date) []Opening
}

// AppointmentLedger gives each offered slot to at most one booking.
type AppointmentLedger struct {
	schedule schedule
	consumed map[Date]map[TimeOfDay]struct{}
}

func (l *AppointmentLedger) Kind() Kind { return KindAppointment }

func (l *AppointmentLedger) IsAvailable(c Candidate) bool {
	slot, ok := c.(TimeSlot)
	if !ok || !l.schedule.offers(slot) {
		return false
	}
	_, taken := l.consumed[slot.Date][slot.Time]
	return !taken
}

func (l *AppointmentLedger) Consume(c Candidate) error {
	slot, ok := c.(TimeSlot)
	if !ok {
		return ErrShape
	}
	if !l.IsAvailable(slot) {
		return ErrUnavailable
	}
	day := l.consumed[slot.Date]
	if day == nil {
		day = map[TimeOfDay]struct{}{}
		l.consumed[slot.Date] = day
	}
	day[slot.Time] = struct{}{}
	return nil
}

func (l *AppointmentLedger) Release(c Candidate) {
	slot, ok := c.(TimeSlot)
	if !ok {
		return
	}
	day := l.consumed[slot.Date]
	if day == nil {
		return
	}
	delete(day, slot.Time)
	if len(day) == 0 {
		delete(l.consumed, slot.Date)
	}
}

func (l *AppointmentLedger) Reset() { l.consumed = map[Date]map[TimeOfDay]struct{}{} }

func (l *AppointmentLedger) Clone() Ledger {
	out := &AppointmentLedger{schedule: l.schedule, consumed: make(map[Date]map[TimeOfDay]struct{}, len(l.consumed))}
	for d, times := range l.consumed {
		cp := make(map[TimeOfDay]struct{}, len(times))
		for t := range times {
			cp[t] = struct{}{}
		}
		out.consumed[d] = cp
	}
	return out
}

func (l *AppointmentLedger) Openings(d Date) []Opening {
	if !l.schedule.days.Has(d.Weekday()) {
		return nil
	}
	var out []Opening
	for _, t := range l.schedule.times {
		if _, taken := l.consumed[d][t]; !taken {
			out = append(out, Opening{Time: t, Remaining: 1})
		}
	}
	return out
}

// CapacityLedger lets up to maxCapacity bookings share one offered slot.
type CapacityLedger struct {
	schedule    schedule
	maxCapacity int
	consumed    map[Date]map[TimeOfDay]int
}

func (l *CapacityLedger) Kind() Kind { return KindCapacitySlot }

func (l *CapacityLedger) MaxCapacity() int { return l.maxCapacity }

// Occupancy is the number of live bookings holding the slot.
func (l *CapacityLedger) Occupancy(slot TimeSlot) int { return l.consumed[slot.Date][slot.Time] }

func (l *CapacityLedger) IsAvailable(c Candidate) bool {
	slot, ok := c.(TimeSlot)
	if !ok || !l.schedule.offers(slot) {
		return false
	}
	return l.consumed[slot.Date][slot.Time] < l.maxCapacity
}

func (l *CapacityLedger) Consume(c Candidate) error {
	slot, ok := c.(TimeSlot)
	if !ok {
		return ErrShape
	}
	if !l.IsAvailable(slot) {
		return ErrUnavailable
	}
	day := l.consumed[slot.Date]
	if day == nil {
		day = map[TimeOfDay]int{}
		l.consumed[slot.Date] = day
	}
	day[slot.Time]++
	return nil
}

func (l *CapacityLedger) Release(c Candidate) {
	slot, ok := c.(TimeSlot)
	if !ok {
		return
	}
	day := l.consumed[slot.Date]
	if day[slot.Time] <= 0 {
		return
	}
	day[slot.Time]--
	if day[slot.Time] == 0 {
		delete(day, slot.Time)
	}
	if len(day) == 0 {
		delete(l.consumed, slot.Date)
	}
}

func (l *CapacityLedger) Reset() { l.consumed = map[Date]map[TimeOfDay]int{} }

func (l *CapacityLedger) Clone() Ledger {
	out := &CapacityLedger{schedule: l.schedule, maxCapacity: l.maxCapacity, consumed: make(map[Date]map[TimeOfDay]int, len(l.consumed))}
	for d, times := range l.consumed {
		cp := make(map[TimeOfDay]int, len(times))
		for t, n := range times {
			cp[t] = n
		}
		out.consumed[d] = cp
	}
	return out
}

func (l *CapacityLedger) Openings(d Date) []Opening {
	if !l.schedule.days.Has(d.Weekday()) {
		return nil
	}
	var out []Opening
	for _, t := range l.schedule.times {
		if left := l.maxCapacity - l.consumed[d][t]; left > 0 {
			out = append(out, Opening{Time: t, Remaining: left})
		}
	}
	return out
}
