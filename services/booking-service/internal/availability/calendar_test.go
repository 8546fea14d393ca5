package availability

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseWeekdays_SpanishAndEnglish(t *testing.T) {
	w, err := ParseWeekdays([]string{"lunes", "Miércoles", "FRIDAY"})
	if err != nil {
		t.Fatalf("ParseWeekdays failed: %v", err)
	}
	for _, d := range []time.Weekday{time.Monday, time.Wednesday, time.Friday} {
		if !w.Has(d) {
			t.Fatalf("expected %s in set", d)
		}
	}
	if w.Has(time.Tuesday) {
		t.Fatal("unexpected Tuesday")
	}
	if _, err := ParseWeekdays([]string{"FUNDAY"}); err == nil {
		t.Fatal("expected error for unknown weekday")
	}

	raw, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `["LUNES","MIERCOLES","VIERNES"]` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestDateFormatting(t *testing.T) {
	d, err := ParseDisplayDate("03/06/2024")
	if err != nil {
		t.Fatalf("ParseDisplayDate failed: %v", err)
	}
	if d.String() != "2024-06-03" || d.Display() != "03/06/2024" {
		t.Fatalf("unexpected formatting %s / %s", d.String(), d.Display())
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", d.Weekday())
	}
	if got := NewDate(2024, time.February, 28).AddDays(1); got.String() != "2024-02-29" {
		t.Fatalf("leap day arithmetic wrong: %s", got)
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Fatal("expected invalid month to fail")
	}
}

func TestDateInstants(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	d := NewDate(2024, time.June, 3)

	at := d.At(NewTimeOfDay(9, 30), loc)
	if want := time.Date(2024, time.June, 3, 12, 30, 0, 0, time.UTC); !at.Equal(want) {
		t.Fatalf("At = %v, want %v", at.UTC(), want)
	}
	if end := d.EndOfDay(loc); !end.Equal(d.AddDays(1).StartOfDay(loc)) {
		t.Fatalf("EndOfDay mismatch: %v", end)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	if err != nil || tod.String() != "07:05" || tod.Hour() != 7 || tod.Minute() != 5 {
		t.Fatalf("unexpected %v (%v)", tod, err)
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatal("expected invalid hour to fail")
	}
}

func TestNormalizeTimes(t *testing.T) {
	got := NormalizeTimes([]TimeOfDay{NewTimeOfDay(10, 0), NewTimeOfDay(9, 0), NewTimeOfDay(10, 0)})
	if len(got) != 2 || got[0] != NewTimeOfDay(9, 0) || got[1] != NewTimeOfDay(10, 0) {
		t.Fatalf("unexpected %v", got)
	}
}
