package sweep

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
)

var deadlines = policy.Deadlines{PendingLead: 2 * time.Hour, ReminderLead: time.Hour}

func slotReservation(state model.State) model.Reservation {
	nine := availability.NewTimeOfDay(9, 0)
	day := availability.NewDate(2025, time.June, 2)
	return model.Reservation{
		ID:              "r1",
		ServiceKind:     availability.KindAppointment,
		Dates:           availability.DateRange{Start: day, End: day},
		TimeOfDay:       &nine,
		DurationMinutes: 30,
		State:           state,
	}
}

func TestShouldAutoCancel(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		state model.State
		now   time.Time
		want  bool
	}{
		{"well ahead", model.StatePendiente, start.Add(-3 * time.Hour), false},
		{"one minute early", model.StatePendiente, start.Add(-121 * time.Minute), false},
		{"at deadline", model.StatePendiente, start.Add(-2 * time.Hour), true},
		{"after start", model.StatePendiente, start.Add(time.Hour), true},
		{"confirmed", model.StateConfirmada, start.Add(-time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldAutoCancel(slotReservation(tc.state), tc.now, time.UTC, deadlines); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRangeDeadlinesUseStartOfDay(t *testing.T) {
	r := model.Reservation{
		ServiceKind: availability.KindRange,
		Dates:       availability.DateRange{Start: availability.NewDate(2025, time.June, 10), End: availability.NewDate(2025, time.June, 12)},
		State:       model.StatePendiente,
	}
	rangeLead := policy.Deadlines{PendingLead: 12 * time.Hour}
	if ShouldAutoCancel(r, time.Date(2025, 6, 9, 11, 59, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("cancelled before noon of the previous day")
	}
	if !ShouldAutoCancel(r, time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("expected cancel at noon of the previous day")
	}

	r.State = model.StateConfirmada
	if ShouldRemind(r, time.Date(2025, 6, 9, 23, 59, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("reminded the day before")
	}
	if !ShouldRemind(r, time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("expected reminder on the start day")
	}
	if ShouldComplete(r, time.Date(2025, 6, 12, 23, 0, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("completed during the last day")
	}
	if !ShouldComplete(r, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), time.UTC, rangeLead) {
		t.Fatal("expected completion after the last day")
	}
}

func TestShouldRemindWindow(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	r := slotReservation(model.StateConfirmada)
	if ShouldRemind(r, start.Add(-61*time.Minute), time.UTC, deadlines) {
		t.Fatal("reminded too early")
	}
	if !ShouldRemind(r, start.Add(-60*time.Minute), time.UTC, deadlines) {
		t.Fatal("expected reminder at 60 minutes")
	}
	if ShouldRemind(r, start, time.UTC, deadlines) {
		t.Fatal("reminded after start")
	}
	r.ReminderSent = true
	if ShouldRemind(r, start.Add(-30*time.Minute), time.UTC, deadlines) {
		t.Fatal("reminded twice")
	}
}

func TestPlanOrdersByPass(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	pending := slotReservation(model.StatePendiente)
	pending.ID = "pending"
	confirmed := slotReservation(model.StateConfirmada)
	confirmed.ID = "confirmed"
	done := slotReservation(model.StateConfirmada)
	done.ID = "elapsed"
	done.Dates = availability.DateRange{Start: availability.NewDate(2025, time.June, 1), End: availability.NewDate(2025, time.June, 1)}

	tasks := Plan([]model.Reservation{done, confirmed, pending}, now, time.UTC, func(availability.Kind) policy.Deadlines { return deadlines })
	want := []Task{
		{Action: ActionCancel, ReservationID: "pending"},
		{Action: ActionRemind, ReservationID: "confirmed"},
		{Action: ActionComplete, ReservationID: "elapsed"},
	}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %v", len(want), tasks)
	}
	for i := range want {
		if tasks[i] != want[i] {
			t.Fatalf("task %d: expected %+v, got %+v", i, want[i], tasks[i])
		}
	}
}
