package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AutoCancelReason is recorded on reservations the sweep cancels.
const AutoCancelReason = "not confirmed in time"

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Recorder receives business metrics. The zero Options value uses a no-op recorder.
type Recorder interface {
	BookingAttempt(kind availability.Kind, outcome string)
	Transition(to model.State, by model.Role)
}

type nopRecorder struct{}

func (nopRecorder) BookingAttempt(availability.Kind, string) {}
func (nopRecorder) Transition(model.State, model.Role)       {}

type Options struct {
	Clock    Clock
	Location *time.Location
	Locker   Locker
	Logger   *slog.Logger
	Metrics  Recorder
	NewID    func() string
}

// Engine is the reservation state machine. Every operation that reads and then changes a
// service's ledger holds that service's lock and commits through one Store transaction.
type Engine struct {
	store   Store
	pets    PetLookup
	clock   Clock
	loc     *time.Location
	locker  Locker
	logger  *slog.Logger
	metrics Recorder
	newID   func() string
	tracer  trace.Tracer
}

func New(store Store, pets PetLookup, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = ClockFunc(time.Now)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		store:   store,
		pets:    pets,
		clock:   opts.Clock,
		loc:     opts.Location,
		locker:  opts.Locker,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		newID:   opts.NewID,
		tracer:  otel.Tracer("booking"),
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) now() time.Time { return e.clock.Now().In(e.loc) }

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) lockService(ctx context.Context, serviceID string) (func(), error) {
	unlock, err := e.locker.Lock(ctx, "service:"+serviceID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ConflictError{Reason: "service is busy, try again", Err: err}
	}
	return unlock, nil
}

// loadService reads the service inside tx and rebuilds its ledger when the stored counter
// disagrees with the reservations that hold capacity.
func (e *Engine) loadService(ctx context.Context, tx Tx, id string) (*model.Service, error) {
	svc, err := tx.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	held, err := tx.CountHeld(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count held reservations: %w", err)
	}
	if held == svc.ReservationCount {
		return svc, nil
	}
	stored := svc.ReservationCount
	if _, err := e.rebuild(ctx, tx, svc); err != nil {
		return nil, err
	}
	e.logger.Warn("service ledger out of sync, rebuilt from reservations",
		"service_id", id, "stored_count", stored, "rebuilt_count", svc.ReservationCount)
	return svc, nil
}

// record stages the notification for kind and its lifecycle event.
func (e *Engine) record(ctx context.Context, tx Tx, r model.Reservation, kind model.NotificationKind, eventType string, at time.Time) error {
	if kind != "" {
		n, err := notify.New(r, kind, e.newID(), at)
		if err != nil {
			return err
		}
		if err := tx.AppendNotification(ctx, n); err != nil {
			return fmt.Errorf("append notification: %w", err)
		}
	}
	evt, err := outbox.ReservationEvent(eventType, r, at)
	if err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}
