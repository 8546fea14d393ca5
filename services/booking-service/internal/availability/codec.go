package availability

import (
	"encoding/json"
	"fmt"
	"sort"
)

// document is the persisted form of a ledger: rules plus consumption.
type document struct {
	Kind        Kind            `json:"kind"`
	Days        Weekdays        `json:"days"`
	Times       []TimeOfDay     `json:"times,omitempty"`
	MaxCapacity int             `json:"max_capacity,omitempty"`
	Consumed    json.RawMessage `json:"consumed,omitempty"`
}

type slotUse struct {
	Date  Date      `json:"date"`
	Time  TimeOfDay `json:"time"`
	Count int       `json:"count,omitempty"`
}

func Marshal(l Ledger) ([]byte, error) {
	doc := document{Kind: l.Kind()}
	var consumed any
	switch v := l.(type) {
	case *AppointmentLedger:
		doc.Days, doc.Times = v.schedule.days, v.schedule.Times()
		var uses []slotUse
		for d, times := range v.consumed {
			for t := range times {
				uses = append(uses, slotUse{Date: d, Time: t})
			}
		}
		consumed = sortUses(uses)
	case *CapacityLedger:
		doc.Days, doc.Times, doc.MaxCapacity = v.schedule.days, v.schedule.Times(), v.maxCapacity
		var uses []slotUse
		for d, times := range v.consumed {
			for t, n := range times {
				uses = append(uses, slotUse{Date: d, Time: t, Count: n})
			}
		}
		consumed = sortUses(uses)
	case *RangeLedger:
		doc.Days = v.days
		consumed = v.consumed
	default:
		return nil, fmt.Errorf("marshal ledger: unsupported type %T", l)
	}
	raw, err := json.Marshal(consumed)
	if err != nil {
		return nil, err
	}
	doc.Consumed = raw
	return json.Marshal(doc)
}

func sortUses(uses []slotUse) []slotUse {
	sort.Slice(uses, func(i, j int) bool {
		if c := uses[i].Date.Compare(uses[j].Date); c != 0 {
			return c < 0
		}
		return uses[i].Time < uses[j].Time
	})
	return uses
}

// Unmarshal restores a ledger. Consumption is replayed through Consume so a document that
// violates capacity or overlap rules is rejected instead of loaded.
func Unmarshal(raw []byte) (Ledger, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal ledger: %w", err)
	}
	l, err := New(doc.Kind, Rules{Days: doc.Days, Times: doc.Times, MaxCapacity: doc.MaxCapacity})
	if err != nil {
		return nil, err
	}
	if len(doc.Consumed) == 0 || string(doc.Consumed) == "null" {
		return l, nil
	}

	if doc.Kind == KindRange {
		var ranges []DateRange
		if err := json.Unmarshal(doc.Consumed, &ranges); err != nil {
			return nil, fmt.Errorf("unmarshal ledger ranges: %w", err)
		}
		for _, r := range ranges {
			if err := l.Consume(r); err != nil {
				return nil, fmt.Errorf("replay range %s: %w", r, err)
			}
		}
		return l, nil
	}

	var uses []slotUse
	if err := json.Unmarshal(doc.Consumed, &uses); err != nil {
		return nil, fmt.Errorf("unmarshal ledger slots: %w", err)
	}
	for _, u := range uses {
		n := u.Count
		if n == 0 {
			n = 1
		}
		slot := TimeSlot{Date: u.Date, Time: u.Time}
		for i := 0; i < n; i++ {
			if err := l.Consume(slot); err != nil {
				return nil, fmt.Errorf("replay slot %s: %w", slot, err)
			}
		}
	}
	return l, nil
}
