package booking_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/storage"
)

var loc = time.FixedZone("ART", -3*60*60)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	store  *storage.MemoryStore
	engine *booking.Engine
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 5, 28, 10, 0, 0, 0, loc)}
	store.AddPet(booking.Pet{ID: "pet-a", OwnerID: "client-a", Name: "Luna", Species: "perro"})
	store.AddPet(booking.Pet{ID: "pet-b", OwnerID: "client-b", Name: "Milo", Species: "perro"})
	store.AddPet(booking.Pet{ID: "pet-c", OwnerID: "client-c", Name: "Tom", Species: "gato"})
	eng := booking.New(store, store, booking.Options{Clock: clock, Location: loc})
	return &fixture{store: store, engine: eng, clock: clock}
}

func (f *fixture) publish(t *testing.T, kind availability.Kind, rules availability.Rules, species ...string) *model.Service {
	t.Helper()
	if len(species) == 0 {
		species = []string{"perro"}
	}
	svc, err := f.engine.PublishService(context.Background(), booking.PublishCommand{
		ProviderID:      "prov-1",
		Kind:            kind,
		Name:            "Servicio",
		AcceptedSpecies: species,
		Rules:           rules,
	})
	if err != nil {
		t.Fatalf("publish service: %v", err)
	}
	return svc
}

func mondayNine() availability.Rules {
	return availability.Rules{
		Days:  availability.NewWeekdays(time.Monday),
		Times: []availability.TimeOfDay{availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(10, 0)},
	}
}

func ptr(t availability.TimeOfDay) *availability.TimeOfDay { return &t }

// 2025-06-02 is a Monday.
var monday = availability.NewDate(2025, time.June, 2)

func slotCmd(client, pet, serviceID string, at availability.TimeOfDay) booking.CreateCommand {
	return booking.CreateCommand{
		ClientID:  client,
		PetID:     pet,
		ServiceID: serviceID,
		Dates:     availability.DateRange{Start: monday, End: monday},
		TimeOfDay: ptr(at),
	}
}

func TestCreateLeavesReservationPendingAndNotifiesProvider(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())

	r, err := f.engine.Create(context.Background(), slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.State != model.StatePendiente || r.ProviderID != "prov-1" || r.DurationMinutes != booking.DefaultDurationMinutes {
		t.Fatalf("unexpected reservation %+v", r)
	}

	inbox, _ := f.engine.Notifications(context.Background(), "prov-1", false, 10)
	if len(inbox) != 1 || inbox[0].Kind != model.NotifyCreated {
		t.Fatalf("expected one created notification, got %v", inbox)
	}
	if !strings.Contains(inbox[0].Message, "02/06/2025 a las 09:00") {
		t.Fatalf("unexpected message %q", inbox[0].Message)
	}

	stored, _ := f.store.GetService(context.Background(), svc.ID)
	if stored.ReservationCount != 1 || stored.IsAvailable(r.Candidate()) {
		t.Fatalf("slot not consumed: count=%d", stored.ReservationCount)
	}

	var types []string
	for _, evt := range f.store.Events() {
		types = append(types, evt.EventType)
	}
	if strings.Join(types, ",") != outbox.ServicePublished+","+outbox.ReservationCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestConcurrentCreatesOnExclusiveSlot(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, pet := "client-a", "pet-a"
			if i%2 == 1 {
				client, pet = "client-b", "pet-b"
			}
			_, err := f.engine.Create(context.Background(), slotCmd(client, pet, svc.ID, availability.NewTimeOfDay(9, 0)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case booking.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", attempts-1, ok, conflicts)
	}
	stored, _ := f.store.GetService(context.Background(), svc.ID)
	if stored.ReservationCount != 1 {
		t.Fatalf("expected count 1, got %d", stored.ReservationCount)
	}
}

func TestCapacitySlotAdmitsUpToMax(t *testing.T) {
	f := newFixture(t)
	rules := mondayNine()
	rules.MaxCapacity = 2
	svc := f.publish(t, availability.KindCapacitySlot, rules)
	ctx := context.Background()
	nine := availability.NewTimeOfDay(9, 0)

	if _, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, nine)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.engine.Create(ctx, slotCmd("client-b", "pet-b", svc.ID, nine)); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, nine)); !booking.IsConflict(err) {
		t.Fatalf("expected conflict for third booking, got %v", err)
	}

	open, err := f.engine.FreeSlots(ctx, svc.ID, monday)
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	if len(open) != 1 || open[0].Time != availability.NewTimeOfDay(10, 0) || open[0].Remaining != 2 {
		t.Fatalf("unexpected openings %v", open)
	}
}

func TestRangeBookingsRejectOverlap(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindRange, availability.Rules{Days: availability.NewWeekdays(time.Monday, time.Saturday)})
	ctx := context.Background()
	span := func(from, to int) availability.DateRange {
		return availability.DateRange{Start: availability.NewDate(2025, time.June, from), End: availability.NewDate(2025, time.June, to)}
	}

	first, err := f.engine.Create(ctx, booking.CreateCommand{ClientID: "client-a", PetID: "pet-a", ServiceID: svc.ID, Dates: span(1, 5)})
	if err != nil {
		t.Fatalf("first range: %v", err)
	}
	if _, err := f.engine.Create(ctx, booking.CreateCommand{ClientID: "client-b", PetID: "pet-b", ServiceID: svc.ID, Dates: span(4, 6)}); !booking.IsConflict(err) {
		t.Fatalf("expected overlap conflict, got %v", err)
	}
	if _, err := f.engine.Create(ctx, booking.CreateCommand{ClientID: "client-b", PetID: "pet-b", ServiceID: svc.ID, Dates: span(6, 8)}); err != nil {
		t.Fatalf("adjacent range: %v", err)
	}

	if _, err := f.engine.Cancel(ctx, booking.CancelCommand{ActorID: "client-a", ReservationID: first.ID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	free, err := f.engine.RangeAvailable(ctx, svc.ID, span(4, 5))
	if err != nil || !free {
		t.Fatalf("expected released range to be free, got %v err=%v", free, err)
	}
	if _, err := f.engine.Create(ctx, booking.CreateCommand{ClientID: "client-b", PetID: "pet-b", ServiceID: svc.ID, Dates: span(4, 5)}); err != nil {
		t.Fatalf("rebook released range: %v", err)
	}
}

func TestCreateRejectsShapeAndSpecies(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  booking.CreateCommand
		want func(error) bool
	}{
		{"missing time", booking.CreateCommand{ClientID: "client-a", PetID: "pet-a", ServiceID: svc.ID, Dates: availability.DateRange{Start: monday}}, booking.IsValidation},
		{"wrong species", slotCmd("client-c", "pet-c", svc.ID, availability.NewTimeOfDay(9, 0)), booking.IsValidation},
		{"foreign pet", slotCmd("client-a", "pet-b", svc.ID, availability.NewTimeOfDay(9, 0)), booking.IsNotFound},
		{"unknown service", slotCmd("client-a", "pet-a", "nope", availability.NewTimeOfDay(9, 0)), booking.IsNotFound},
		{"time not offered", slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(11, 0)), booking.IsConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.Create(ctx, tc.cmd); !tc.want(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
	stored, _ := f.store.GetService(ctx, svc.ID)
	if stored.ReservationCount != 0 {
		t.Fatalf("rejected bookings consumed capacity: %d", stored.ReservationCount)
	}
}

func TestCreateIsIdempotentPerClientKey(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	cmd := slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0))
	cmd.IdempotencyKey = "key-1"

	first, err := f.engine.Create(ctx, cmd)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	again, err := f.engine.Create(ctx, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected replay of %s, got %s", first.ID, again.ID)
	}
	page, _ := f.engine.List(ctx, booking.ListQuery{OwnerID: "client-a", OwnerRole: model.RoleClient})
	if page.Total != 1 {
		t.Fatalf("expected one reservation, got %d", page.Total)
	}
}

func TestConfirmAndCancelRules(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	r, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.engine.Confirm(ctx, "prov-other", r.ID); !booking.IsNotFound(err) {
		t.Fatalf("expected not found for foreign provider, got %v", err)
	}
	confirmed, err := f.engine.Confirm(ctx, "prov-1", r.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.State != model.StateConfirmada || confirmed.ConfirmedAt == nil {
		t.Fatalf("unexpected confirmed reservation %+v", confirmed)
	}
	if _, err := f.engine.Confirm(ctx, "prov-1", r.ID); !booking.IsValidation(err) {
		t.Fatalf("expected validation on second confirm, got %v", err)
	}

	if _, err := f.engine.Cancel(ctx, booking.CancelCommand{ActorID: "client-b", ReservationID: r.ID}); !booking.IsValidation(err) {
		t.Fatalf("expected validation for unrelated actor, got %v", err)
	}

	cancelled, err := f.engine.Cancel(ctx, booking.CancelCommand{ActorID: "prov-1", ReservationID: r.ID, Reason: "feriado"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelledBy != model.RoleProvider || cancelled.CancelReason != "feriado" {
		t.Fatalf("unexpected cancellation %+v", cancelled)
	}
	if _, err := f.engine.Cancel(ctx, booking.CancelCommand{ActorID: "client-a", ReservationID: r.ID}); !booking.IsValidation(err) {
		t.Fatalf("expected validation on second cancel, got %v", err)
	}

	inbox, _ := f.engine.Notifications(ctx, "client-a", false, 10)
	if len(inbox) != 2 || inbox[0].Kind != model.NotifyCancelledByProvider || !strings.HasSuffix(inbox[0].Message, "Motivo: feriado.") {
		t.Fatalf("unexpected client inbox %v", inbox)
	}

	if _, err := f.engine.Create(ctx, slotCmd("client-b", "pet-b", svc.ID, availability.NewTimeOfDay(9, 0))); err != nil {
		t.Fatalf("slot not released: %v", err)
	}
}

func TestCancelAfterStartIsRejected(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	r, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.clock.Set(time.Date(2025, 6, 2, 9, 0, 0, 0, loc))
	if _, err := f.engine.Cancel(ctx, booking.CancelCommand{ActorID: "client-a", ReservationID: r.ID}); !booking.IsValidation(err) {
		t.Fatalf("expected validation, got %v", err)
	}
	if _, err := f.engine.Create(ctx, slotCmd("client-b", "pet-b", svc.ID, availability.NewTimeOfDay(10, 0))); err != nil {
		t.Fatalf("future slot on same day: %v", err)
	}
	if _, err := f.engine.Create(ctx, slotCmd("client-b", "pet-b", svc.ID, availability.NewTimeOfDay(9, 0))); !booking.IsValidation(err) && !booking.IsConflict(err) {
		t.Fatalf("expected started slot to be rejected, got %v", err)
	}
}

func TestSweepTransitionsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	pending, _ := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0)))
	toConfirm, _ := f.engine.Create(ctx, slotCmd("client-b", "pet-b", svc.ID, availability.NewTimeOfDay(10, 0)))
	if _, err := f.engine.Confirm(ctx, "prov-1", toConfirm.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	done, err := f.engine.AutoCancel(ctx, pending.ID)
	if err != nil || !done {
		t.Fatalf("auto cancel: done=%v err=%v", done, err)
	}
	if done, _ := f.engine.AutoCancel(ctx, pending.ID); done {
		t.Fatal("second auto cancel should be a no-op")
	}
	if done, _ := f.engine.AutoCancel(ctx, toConfirm.ID); done {
		t.Fatal("auto cancel must not touch confirmed reservations")
	}

	if done, _ := f.engine.SendReminder(ctx, toConfirm.ID); !done {
		t.Fatal("expected reminder")
	}
	if done, _ := f.engine.SendReminder(ctx, toConfirm.ID); done {
		t.Fatal("reminder sent twice")
	}

	if done, _ := f.engine.Complete(ctx, toConfirm.ID); done {
		t.Fatal("completed before the end")
	}
	f.clock.Set(time.Date(2025, 6, 2, 10, 30, 0, 0, loc))
	if done, _ := f.engine.Complete(ctx, toConfirm.ID); !done {
		t.Fatal("expected completion")
	}

	got, _ := f.store.GetReservation(ctx, pending.ID)
	if got.CancelledBy != model.RoleSystem || got.CancelReason != booking.AutoCancelReason {
		t.Fatalf("unexpected auto cancellation %+v", got)
	}
	stored, _ := f.store.GetService(ctx, svc.ID)
	if stored.ReservationCount != 1 {
		t.Fatalf("completed booking should keep its capacity, count=%d", stored.ReservationCount)
	}

	inbox, _ := f.engine.Notifications(ctx, "client-a", false, 10)
	if len(inbox) != 1 || inbox[0].Kind != model.NotifyAutoCancelled {
		t.Fatalf("unexpected inbox %v", inbox)
	}
}

func TestListPagesByOwner(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	for _, at := range []availability.TimeOfDay{availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(10, 0)} {
		f.clock.Set(f.clock.Now().Add(time.Minute))
		if _, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, at)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := f.engine.List(ctx, booking.ListQuery{OwnerID: "prov-1", OwnerRole: model.RoleProvider, Page: model.Page{Number: 1, Size: 1}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].Time != "10:00" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].StartsAt != "2025-06-02T10:00:00-03:00" {
		t.Fatalf("unexpected starts_at %s", page.Items[0].StartsAt)
	}

	if _, err := f.engine.List(ctx, booking.ListQuery{OwnerID: "prov-1", OwnerRole: "admin"}); !booking.IsValidation(err) {
		t.Fatalf("expected validation for unknown role, got %v", err)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	if _, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0))); err != nil {
		t.Fatalf("create: %v", err)
	}
	inbox, _ := f.engine.Notifications(ctx, "prov-1", true, 10)
	if len(inbox) != 1 {
		t.Fatalf("expected one unread, got %d", len(inbox))
	}

	if _, err := f.engine.MarkNotificationRead(ctx, "client-a", inbox[0].ID); !booking.IsNotFound(err) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	for i := 0; i < 2; i++ {
		n, err := f.engine.MarkNotificationRead(ctx, "prov-1", inbox[0].ID)
		if err != nil || !n.Read {
			t.Fatalf("mark read: %+v err=%v", n, err)
		}
	}
	unread, _ := f.engine.Notifications(ctx, "prov-1", true, 10)
	if len(unread) != 0 {
		t.Fatalf("expected empty unread inbox, got %v", unread)
	}
}

func TestReconcileRepairsDriftedCounter(t *testing.T) {
	f := newFixture(t)
	svc := f.publish(t, availability.KindAppointment, mondayNine())
	ctx := context.Background()
	if _, err := f.engine.Create(ctx, slotCmd("client-a", "pet-a", svc.ID, availability.NewTimeOfDay(9, 0))); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := f.store.InTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		s, err := tx.GetService(ctx, svc.ID)
		if err != nil {
			return err
		}
		s.ReservationCount = 5
		return tx.SaveService(ctx, s)
	})
	if err != nil {
		t.Fatalf("corrupt counter: %v", err)
	}

	changed, err := f.engine.Reconcile(ctx, svc.ID)
	if err != nil || !changed {
		t.Fatalf("reconcile: changed=%v err=%v", changed, err)
	}
	if changed, _ := f.engine.Reconcile(ctx, svc.ID); changed {
		t.Fatal("second reconcile should be a no-op")
	}
	stored, _ := f.store.GetService(ctx, svc.ID)
	if stored.ReservationCount != 1 {
		t.Fatalf("expected count 1, got %d", stored.ReservationCount)
	}
}

func TestPublishServiceValidatesRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []booking.PublishCommand{
		{ProviderID: "p", Kind: availability.KindAppointment, Name: "x", AcceptedSpecies: []string{"perro"}},
		{ProviderID: "p", Kind: availability.KindRange, Name: "x", AcceptedSpecies: []string{"perro"},
			Rules: availability.Rules{Days: availability.NewWeekdays(time.Monday), Times: []availability.TimeOfDay{60}}},
		{ProviderID: "p", Kind: availability.KindCapacitySlot, Name: "x", Rules: mondayNine()},
		{ProviderID: "p", Kind: "boarding", Name: "x", AcceptedSpecies: []string{"perro"}, Rules: mondayNine()},
	}
	for i, cmd := range cases {
		if _, err := f.engine.PublishService(ctx, cmd); !booking.IsValidation(err) {
			t.Fatalf("case %d: expected validation, got %v", i, err)
		}
	}
}
