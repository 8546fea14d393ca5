package availability

import (
	"strings"
	"testing"
	"time"
)

func TestCodec_PreservesConsumption(t *testing.T) {
	nine := NewTimeOfDay(9, 0)
	monday := NewDate(2024, time.June, 3)

	capacity, _ := New(KindCapacitySlot, Rules{Days: NewWeekdays(time.Monday), Times: []TimeOfDay{nine}, MaxCapacity: 3})
	_ = capacity.Consume(TimeSlot{Date: monday, Time: nine})
	_ = capacity.Consume(TimeSlot{Date: monday, Time: nine})

	raw, err := Marshal(capacity)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	cl, ok := restored.(*CapacityLedger)
	if !ok {
		t.Fatalf("expected *CapacityLedger, got %T", restored)
	}
	if cl.MaxCapacity() != 3 || cl.Occupancy(TimeSlot{Date: monday, Time: nine}) != 2 {
		t.Fatalf("restored ledger lost state: cap=%d occ=%d", cl.MaxCapacity(), cl.Occupancy(TimeSlot{Date: monday, Time: nine}))
	}

	ranges, _ := New(KindRange, Rules{Days: NewWeekdays(time.Saturday)})
	booked := DateRange{Start: NewDate(2024, time.June, 1), End: NewDate(2024, time.June, 5)}
	_ = ranges.Consume(booked)
	raw, err = Marshal(ranges)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"start":"2024-06-01"`) {
		t.Fatalf("unexpected document %s", raw)
	}
	restored, err = Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if restored.IsAvailable(booked) {
		t.Fatal("restored range ledger forgot the booking")
	}
}

func TestCodec_RejectsOverbookedDocument(t *testing.T) {
	raw := []byte(`{"kind":"appointment","days":["LUNES"],"times":["09:00"],
		"consumed":[{"date":"2024-06-03","time":"09:00"},{"date":"2024-06-03","time":"09:00"}]}`)
	if _, err := Unmarshal(raw); err == nil {
		t.Fatal("expected duplicate exclusive consumption to be rejected")
	}
}
