package availability

import "sort"

// RangeLedger holds the non-overlapping day spans currently booked.
type RangeLedger struct {
	days     Weekdays
	consumed []DateRange
}

func (l *RangeLedger) Kind() Kind { return KindRange }

// Booked returns the consumed spans ordered by start day.
func (l *RangeLedger) Booked() []DateRange { return append([]DateRange(nil), l.consumed...) }

func (l *RangeLedger) IsAvailable(c Candidate) bool {
	r, ok := c.(DateRange)
	if !ok || r.End.Before(r.Start) {
		return false
	}
	for _, existing := range l.consumed {
		if existing.Overlaps(r) {
			return false
		}
	}
	return true
}

func (l *RangeLedger) Consume(c Candidate) error {
	r, ok := c.(DateRange)
	if !ok {
		return ErrShape
	}
	if !l.IsAvailable(r) {
		return ErrUnavailable
	}
	l.consumed = append(l.consumed, r)
	sort.Slice(l.consumed, func(i, j int) bool { return l.consumed[i].Start.Before(l.consumed[j].Start) })
	return nil
}

func (l *RangeLedger) Release(c Candidate) {
	r, ok := c.(DateRange)
	if !ok {
		return
	}
	for i, existing := range l.consumed {
		if existing == r {
			l.consumed = append(l.consumed[:i], l.consumed[i+1:]...)
			return
		}
	}
}

func (l *RangeLedger) Reset() { l.consumed = nil }

func (l *RangeLedger) Clone() Ledger {
	return &RangeLedger{days: l.days, consumed: append([]DateRange(nil), l.consumed...)}
}
