package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultDurationMinutes applies to time-of-day services published without a duration.
const DefaultDurationMinutes = 30

type PublishCommand struct {
	ProviderID      string
	Kind            availability.Kind
	Name            string
	AcceptedSpecies []string
	Rules           availability.Rules
	DurationMinutes int
}

// PublishService creates a service with an empty ledger built from the provider's rules.
func (e *Engine) PublishService(ctx context.Context, cmd PublishCommand) (svc *model.Service, err error) {
	ctx, span := e.startSpan(ctx, "booking.PublishService", attribute.String("service.kind", string(cmd.Kind)))
	defer func() { endSpan(span, err) }()

	cmd.ProviderID = strings.TrimSpace(cmd.ProviderID)
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.ProviderID == "" {
		return nil, invalid("provider_id", "required")
	}
	if cmd.Name == "" {
		return nil, invalid("name", "required")
	}
	if _, err := availability.ParseKind(string(cmd.Kind)); err != nil {
		return nil, invalid("kind", "%v", err)
	}
	species := make([]string, 0, len(cmd.AcceptedSpecies))
	for _, s := range cmd.AcceptedSpecies {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			species = append(species, s)
		}
	}
	if len(species) == 0 {
		return nil, invalid("accepted_species", "at least one species is required")
	}

	cmd.Rules.Times = availability.NormalizeTimes(cmd.Rules.Times)
	ledger, err := availability.New(cmd.Kind, cmd.Rules)
	if err != nil {
		return nil, invalid("rules", "%v", err)
	}
	if cmd.Kind.UsesTimeOfDay() {
		if cmd.DurationMinutes < 0 || cmd.DurationMinutes > 24*60 {
			return nil, invalid("duration_minutes", "must be between 1 and 1440")
		}
		if cmd.DurationMinutes == 0 {
			cmd.DurationMinutes = DefaultDurationMinutes
		}
	} else {
		cmd.DurationMinutes = 0
	}

	now := e.now()
	svc = model.NewService(e.newID(), cmd.ProviderID, cmd.Name, ledger)
	svc.AcceptedSpecies = species
	svc.DurationMinutes = cmd.DurationMinutes
	svc.CreatedAt, svc.UpdatedAt = now, now

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SaveService(ctx, svc); err != nil {
			return err
		}
		evt, err := outbox.ServiceEvent(svc, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return nil, asConflict(err)
	}
	e.logger.Info("service published", "service_id", svc.ID, "provider_id", svc.ProviderID, "kind", svc.Kind)
	return svc, nil
}

// FreeSlots lists the times still bookable on date for a time-of-day service. Times that
// have already started are left out.
func (e *Engine) FreeSlots(ctx context.Context, serviceID string, date availability.Date) ([]availability.Opening, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	ledger, ok := svc.Ledger().(availability.SlotLedger)
	if !ok {
		return nil, invalid("date", "service %s is booked by date range", svc.ID)
	}
	now := e.now()
	var out []availability.Opening
	for _, o := range ledger.Openings(date) {
		if now.Before(date.At(o.Time, e.loc)) {
			out = append(out, o)
		}
	}
	return out, nil
}

// RangeAvailable reports whether the span is free on a range service.
func (e *Engine) RangeAvailable(ctx context.Context, serviceID string, dates availability.DateRange) (bool, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return false, err
	}
	if svc.Kind != availability.KindRange {
		return false, invalid("date", "service %s is booked by time slot", svc.ID)
	}
	if dates.End.Before(dates.Start) {
		return false, invalid("end_date", "must not be before start_date")
	}
	if !e.now().Before(dates.Start.StartOfDay(e.loc)) {
		return false, nil
	}
	return svc.IsAvailable(dates), nil
}

// ServiceIDs lists every published service.
func (e *Engine) ServiceIDs(ctx context.Context) ([]string, error) {
	return e.store.ListServiceIDs(ctx)
}

// SweepSnapshot returns every reservation the periodic sweep may act on.
func (e *Engine) SweepSnapshot(ctx context.Context) ([]model.Reservation, error) {
	items, _, err := e.store.FindReservations(ctx, model.ReservationFilter{
		States: []model.State{model.StatePendiente, model.StateConfirmada},
	})
	return items, err
}

// Now exposes the engine clock in the engine location.
func (e *Engine) Now() time.Time { return e.now() }
