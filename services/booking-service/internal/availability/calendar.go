package availability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02/01/2006"
)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day t falls on in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(isoLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return DateOf(t), nil
}

// ParseDisplayDate accepts the DD/MM/YYYY form clients type in.
func ParseDisplayDate(raw string) (Date, error) {
	t, err := time.Parse(displayLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want DD/MM/YYYY)", raw)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string  { return d.utc().Format(isoLayout) }
func (d Date) Display() string { return d.utc().Format(displayLayout) }

func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.utc().AddDate(0, 0, n)) }

func (d Date) Compare(o Date) int {
	return d.utc().Compare(o.utc())
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// At returns the instant the given time of day starts on d in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

// StartOfDay is midnight of d in loc.
func (d Date) StartOfDay(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// EndOfDay is the first instant of the following day in loc.
func (d Date) EndOfDay(loc *time.Location) time.Time {
	return d.AddDays(1).StartOfDay(loc)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay counts minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"DOMINGO":   time.Sunday,
	"LUNES":     time.Monday,
	"MARTES":    time.Tuesday,
	"MIERCOLES": time.Wednesday,
	"MIÉRCOLES": time.Wednesday,
	"JUEVES":    time.Thursday,
	"VIERNES":   time.Friday,
	"SABADO":    time.Saturday,
	"SÁBADO":    time.Saturday,
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

var spanishWeekday = [...]string{"DOMINGO", "LUNES", "MARTES", "MIERCOLES", "JUEVES", "VIERNES", "SABADO"}

func ParseWeekday(raw string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", raw)
	}
	return wd, nil
}

func WeekdayName(wd time.Weekday) string { return spanishWeekday[wd] }

// Weekdays is a set of days encoded as a bitmask (bit 0 = Sunday).
type Weekdays uint8

func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

func ParseWeekdays(raw []string) (Weekdays, error) {
	var w Weekdays
	for _, name := range raw {
		wd, err := ParseWeekday(name)
		if err != nil {
			return 0, err
		}
		w |= 1 << uint(wd)
	}
	return w, nil
}

func (w Weekdays) Has(d time.Weekday) bool { return w&(1<<uint(d)) != 0 }

func (w Weekdays) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, WeekdayName(d))
	}
	return json.Marshal(names)
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// NormalizeTimes sorts and deduplicates a list of offered times.
func NormalizeTimes(times []TimeOfDay) []TimeOfDay {
	out := append([]TimeOfDay(nil), times...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, t := range out {
		if i > 0 && t == out[n-1] {
			continue
		}
		out[n] = t
		n++
	}
	return out[:n]
}
