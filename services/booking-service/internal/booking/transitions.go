package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
)

// Confirm moves a PENDIENTE reservation to CONFIRMADA on behalf of the service's provider.
func (e *Engine) Confirm(ctx context.Context, actorProviderID, reservationID string) (res *model.Reservation, err error) {
	ctx, span := e.startSpan(ctx, "booking.Confirm", attribute.String("reservation.id", reservationID))
	defer func() { endSpan(span, err) }()

	actorProviderID = strings.TrimSpace(actorProviderID)
	if actorProviderID == "" {
		return nil, invalid("actor", "required")
	}

	var out model.Reservation
	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		svc, err := tx.GetService(ctx, r.ServiceID)
		if err != nil {
			return err
		}
		if svc.ProviderID != actorProviderID {
			return notFound("reservation", reservationID)
		}
		switch {
		case r.State == model.StateConfirmada:
			return invalid("state", "reservation is already confirmed")
		case !r.State.CanTransitionTo(model.StateConfirmada):
			return invalid("state", "cannot confirm a %s reservation", r.State)
		}

		now := e.now()
		r.State = model.StateConfirmada
		r.ConfirmedAt = &now
		r.UpdatedAt = now
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if err := e.record(ctx, tx, *r, model.NotifyConfirmed, outbox.ReservationConfirmed, now); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return nil, asConflict(err)
	}
	e.metrics.Transition(model.StateConfirmada, model.RoleProvider)
	e.logger.Info("reservation confirmed", "reservation_id", out.ID, "service_id", out.ServiceID)
	return &out, nil
}

type CancelCommand struct {
	ActorID       string
	ReservationID string
	Reason        string
}

// Cancel is available to the client and to the service's provider until the booking starts.
func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) (res *model.Reservation, err error) {
	ctx, span := e.startSpan(ctx, "booking.Cancel", attribute.String("reservation.id", cmd.ReservationID))
	defer func() { endSpan(span, err) }()

	cmd.ActorID = strings.TrimSpace(cmd.ActorID)
	cmd.Reason = strings.TrimSpace(cmd.Reason)
	if cmd.ActorID == "" {
		return nil, invalid("actor", "required")
	}
	if len(cmd.Reason) > 500 {
		return nil, invalid("reason", "must be at most 500 characters")
	}

	r, err := e.cancel(ctx, cmd.ReservationID, func(r *model.Reservation, svc *model.Service, now time.Time) (model.Role, bool, error) {
		var by model.Role
		switch cmd.ActorID {
		case r.ClientID:
			by = model.RoleClient
		case svc.ProviderID:
			by = model.RoleProvider
		default:
			return "", false, invalid("actor", "only the client or the provider can cancel this reservation")
		}
		if r.State == model.StateCancelada {
			return "", false, invalid("state", "reservation is already cancelled")
		}
		if !r.State.CanTransitionTo(model.StateCancelada) {
			return "", false, invalid("state", "cannot cancel a %s reservation", r.State)
		}
		if !now.Before(r.StartsAt(e.loc)) {
			return "", false, invalid("state", "the reservation has already started")
		}
		return by, true, nil
	}, cmd.Reason)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// AutoCancel rejects a reservation still PENDIENTE through the provider-rejection path.
// It reports false without error when the reservation has moved on.
func (e *Engine) AutoCancel(ctx context.Context, reservationID string) (done bool, err error) {
	ctx, span := e.startSpan(ctx, "booking.AutoCancel", attribute.String("reservation.id", reservationID))
	defer func() { endSpan(span, err) }()

	r, err := e.cancel(ctx, reservationID, func(r *model.Reservation, _ *model.Service, _ time.Time) (model.Role, bool, error) {
		return model.RoleSystem, r.State == model.StatePendiente, nil
	}, AutoCancelReason)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// cancelCheck decides who is cancelling and whether to proceed; proceed=false is a silent no-op.
type cancelCheck func(r *model.Reservation, svc *model.Service, now time.Time) (by model.Role, proceed bool, err error)

func (e *Engine) cancel(ctx context.Context, reservationID string, check cancelCheck, reason string) (*model.Reservation, error) {
	peek, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	unlock, err := e.lockService(ctx, peek.ServiceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out  *model.Reservation
		by   model.Role
		prev model.State
	)
	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = nil
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		svc, err := e.loadService(ctx, tx, r.ServiceID)
		if err != nil {
			return err
		}
		now := e.now()
		actor, proceed, err := check(r, svc, now)
		if err != nil || !proceed {
			return err
		}
		by, prev = actor, r.State

		svc.Release(r.Candidate())
		svc.UpdatedAt = now
		r.State = model.StateCancelada
		r.CancelReason = reason
		r.CancelledBy = by
		r.CancelledAt = &now
		r.UpdatedAt = now

		if err := tx.SaveService(ctx, svc); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}

		kind := model.NotifyCancelledByProvider
		switch by {
		case model.RoleClient:
			kind = model.NotifyCancelledByClient
		case model.RoleSystem:
			kind = model.NotifyAutoCancelled
		}
		if err := e.record(ctx, tx, *r, kind, outbox.ReservationCancelled, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, asConflict(err)
	}
	if out == nil {
		return nil, nil
	}
	e.metrics.Transition(model.StateCancelada, by)
	e.logger.Info("reservation cancelled",
		"reservation_id", out.ID,
		"service_id", out.ServiceID,
		"previous_state", prev,
		"cancelled_by", by,
	)
	return out, nil
}

// Complete marks an elapsed CONFIRMADA reservation COMPLETADA. The ledger keeps the
// consumption and nobody is notified.
func (e *Engine) Complete(ctx context.Context, reservationID string) (done bool, err error) {
	ctx, span := e.startSpan(ctx, "booking.Complete", attribute.String("reservation.id", reservationID))
	defer func() { endSpan(span, err) }()

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		done = false
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.State != model.StateConfirmada {
			return nil
		}
		now := e.now()
		if now.Before(r.EndsAt(e.loc)) {
			return nil
		}
		r.State = model.StateCompletada
		r.CompletedAt = &now
		r.UpdatedAt = now
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if err := e.record(ctx, tx, *r, "", outbox.ReservationCompleted, now); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return false, asConflict(err)
	}
	if done {
		e.metrics.Transition(model.StateCompletada, model.RoleSystem)
		e.logger.Info("reservation completed", "reservation_id", reservationID)
	}
	return done, nil
}

// SendReminder stores the client reminder and flips ReminderSent in the same commit, so a
// reservation is reminded at most once.
func (e *Engine) SendReminder(ctx context.Context, reservationID string) (done bool, err error) {
	ctx, span := e.startSpan(ctx, "booking.SendReminder", attribute.String("reservation.id", reservationID))
	defer func() { endSpan(span, err) }()

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		done = false
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.State != model.StateConfirmada || r.ReminderSent {
			return nil
		}
		now := e.now()
		r.ReminderSent = true
		r.UpdatedAt = now
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if err := e.record(ctx, tx, *r, model.NotifyReminder, outbox.ReservationReminded, now); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return false, asConflict(err)
	}
	if done {
		e.logger.Info("reminder sent", "reservation_id", reservationID)
	}
	return done, nil
}
