package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

type CreateCommand struct {
	ClientID  string
	PetID     string
	ServiceID string
	// ServiceKind is optional; when set it must match the stored service.
	ServiceKind    availability.Kind
	Dates          availability.DateRange
	TimeOfDay      *availability.TimeOfDay
	Contact        model.Contact
	Note           string
	IdempotencyKey string
}

func (c *CreateCommand) normalize() error {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.PetID = strings.TrimSpace(c.PetID)
	c.ServiceID = strings.TrimSpace(c.ServiceID)
	c.IdempotencyKey = strings.TrimSpace(c.IdempotencyKey)
	c.Contact.Name = strings.TrimSpace(c.Contact.Name)
	c.Contact.Email = strings.TrimSpace(c.Contact.Email)
	c.Contact.Phone = strings.TrimSpace(c.Contact.Phone)
	c.Note = strings.TrimSpace(c.Note)

	switch {
	case c.ClientID == "":
		return invalid("client_id", "required")
	case c.PetID == "":
		return invalid("pet_id", "required")
	case c.ServiceID == "":
		return invalid("service_id", "required")
	case c.Dates.Start.IsZero():
		return invalid("start_date", "required")
	}
	if c.Dates.End.IsZero() {
		c.Dates.End = c.Dates.Start
	}
	if c.Dates.End.Before(c.Dates.Start) {
		return invalid("end_date", "must not be before start_date")
	}
	if len(c.Note) > 1000 {
		return invalid("note", "must be at most 1000 characters")
	}
	return nil
}

// checkShape validates the candidate against the kind of service being booked.
func checkShape(kind availability.Kind, c CreateCommand) error {
	if kind.UsesTimeOfDay() {
		if c.TimeOfDay == nil {
			return invalid("time", "required for %s services", kind)
		}
		if c.Dates.End != c.Dates.Start {
			return invalid("end_date", "%s bookings cover a single day", kind)
		}
		return nil
	}
	if c.TimeOfDay != nil {
		return invalid("time", "range bookings do not take a time of day")
	}
	return nil
}

// Create books a slot or range and leaves the reservation PENDIENTE. The availability
// check and the consume happen under the service lock inside a single transaction.
func (e *Engine) Create(ctx context.Context, cmd CreateCommand) (res *model.Reservation, err error) {
	ctx, span := e.startSpan(ctx, "booking.Create",
		attribute.String("service.id", cmd.ServiceID),
		attribute.String("client.id", cmd.ClientID),
	)
	defer func() { endSpan(span, err) }()

	kind := cmd.ServiceKind
	defer func() { e.metrics.BookingAttempt(kind, outcome(err)) }()

	if err := cmd.normalize(); err != nil {
		return nil, err
	}
	if cmd.ServiceKind != "" {
		if _, err := availability.ParseKind(string(cmd.ServiceKind)); err != nil {
			return nil, invalid("service_kind", "%v", err)
		}
	}

	pet, err := e.pets.GetPet(ctx, cmd.PetID)
	if err != nil {
		return nil, err
	}
	if pet.OwnerID != cmd.ClientID {
		return nil, notFound("pet", cmd.PetID)
	}

	unlock, err := e.lockService(ctx, cmd.ServiceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	var created model.Reservation
	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if cmd.IdempotencyKey != "" {
			prior, err := tx.FindByIdempotencyKey(ctx, cmd.ClientID, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				created = *prior
				return nil
			}
		}

		svc, err := e.loadService(ctx, tx, cmd.ServiceID)
		if err != nil {
			return err
		}
		kind = svc.Kind
		if cmd.ServiceKind != "" && cmd.ServiceKind != svc.Kind {
			return invalid("service_kind", "service %s is %s, not %s", svc.ID, svc.Kind, cmd.ServiceKind)
		}
		if err := checkShape(svc.Kind, cmd); err != nil {
			return err
		}
		if !svc.Accepts(pet.Species) {
			return invalid("pet_id", "species %q is not accepted by this service", pet.Species)
		}

		r := model.Reservation{
			ID:              e.newID(),
			ClientID:        cmd.ClientID,
			PetID:           cmd.PetID,
			ServiceID:       svc.ID,
			ProviderID:      svc.ProviderID,
			ServiceKind:     svc.Kind,
			ServiceName:     svc.Name,
			Dates:           cmd.Dates,
			TimeOfDay:       cmd.TimeOfDay,
			DurationMinutes: svc.DurationMinutes,
			State:           model.StatePendiente,
			Contact:         cmd.Contact,
			Note:            cmd.Note,
			IdempotencyKey:  cmd.IdempotencyKey,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if !now.Before(r.StartsAt(e.loc)) {
			return invalid("start_date", "the requested start has already passed")
		}

		candidate := r.Candidate()
		if !svc.IsAvailable(candidate) {
			return &ConflictError{Reason: "not available"}
		}
		if err := svc.Consume(candidate); err != nil {
			if errors.Is(err, availability.ErrUnavailable) {
				return &ConflictError{Reason: "not available"}
			}
			return fmt.Errorf("consume: %w", err)
		}
		svc.UpdatedAt = now

		if err := tx.SaveService(ctx, svc); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, &r); err != nil {
			return err
		}
		if err := e.record(ctx, tx, r, model.NotifyCreated, outbox.ReservationCreated, now); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, asConflict(err)
	}

	e.logger.Info("reservation created",
		"reservation_id", created.ID,
		"service_id", created.ServiceID,
		"state", created.State,
	)
	return &created, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case IsConflict(err):
		return "conflict"
	case IsValidation(err):
		return "invalid"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
