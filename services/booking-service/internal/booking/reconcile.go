package booking

import (
	"bytes"
	"context"
	"fmt"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// rebuild recomputes svc's ledger and counter from the reservations holding capacity and
// saves the service when either differs from what was stored.
func (e *Engine) rebuild(ctx context.Context, tx Tx, svc *model.Service) (bool, error) {
	held, err := tx.HeldReservations(ctx, svc.ID)
	if err != nil {
		return false, fmt.Errorf("load held reservations: %w", err)
	}
	before, err := availability.Marshal(svc.Ledger())
	if err != nil {
		return false, err
	}
	count := svc.ReservationCount
	if err := svc.Rebuild(held); err != nil {
		return false, fmt.Errorf("rebuild ledger for service %s: %w", svc.ID, err)
	}
	after, err := availability.Marshal(svc.Ledger())
	if err != nil {
		return false, err
	}
	if count == svc.ReservationCount && bytes.Equal(before, after) {
		return false, nil
	}
	svc.UpdatedAt = e.now()
	if err := tx.SaveService(ctx, svc); err != nil {
		return false, err
	}
	return true, nil
}

// Reconcile rebuilds one service's ledger from its reservations. It reports whether
// anything had drifted.
func (e *Engine) Reconcile(ctx context.Context, serviceID string) (changed bool, err error) {
	ctx, span := e.startSpan(ctx, "booking.Reconcile", attribute.String("service.id", serviceID))
	defer func() { endSpan(span, err) }()

	unlock, err := e.lockService(ctx, serviceID)
	if err != nil {
		return false, err
	}
	defer unlock()

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		changed, err = e.rebuild(ctx, tx, svc)
		return err
	})
	if err != nil {
		return false, asConflict(err)
	}
	if changed {
		e.logger.Warn("service ledger reconciled", "service_id", serviceID)
	}
	return changed, nil
}
