package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the slice of booking.Engine the sweep drives.
type Engine interface {
	Now() time.Time
	Location() *time.Location
	SweepSnapshot(ctx context.Context) ([]model.Reservation, error)
	ServiceIDs(ctx context.Context) ([]string, error)
	AutoCancel(ctx context.Context, reservationID string) (bool, error)
	SendReminder(ctx context.Context, reservationID string) (bool, error)
	Complete(ctx context.Context, reservationID string) (bool, error)
	Reconcile(ctx context.Context, serviceID string) (bool, error)
}

// Leader gates each sweep so only one instance acts at a time.
type Leader interface {
	Elect(ctx context.Context) (bool, error)
}

// AlwaysLeader is used when a single process owns the store.
type AlwaysLeader struct{}

func (AlwaysLeader) Elect(context.Context) (bool, error) { return true, nil }

type Recorder interface {
	SweepAction(action, outcome string)
	SweepCompleted(elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) SweepAction(string, string)          {}
func (nopRecorder) SweepCompleted(time.Duration, error) {}

type Config struct {
	Interval       time.Duration
	ItemTimeout    time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	ReconcileEvery int
}

type Report struct {
	Cancelled  int
	Reminded   int
	Completed  int
	Skipped    int
	Failed     int
	Reconciled int
}

type Worker struct {
	engine    Engine
	deadlines policy.Provider
	leader    Leader
	logger    *slog.Logger
	metrics   Recorder
	cfg       Config
	tracer    trace.Tracer
	sweeps    int

	// OnSweep is called after every attempted sweep with its outcome.
	OnSweep func(Report, error)
}

func NewWorker(engine Engine, deadlines policy.Provider, leader Leader, logger *slog.Logger, metrics Recorder, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.ReconcileEvery < 0 {
		cfg.ReconcileEvery = 0
	}
	if deadlines == nil {
		deadlines = policy.NewStaticProvider(policy.StaticConfig{})
	}
	if leader == nil {
		leader = AlwaysLeader{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Worker{
		engine:    engine,
		deadlines: deadlines,
		leader:    leader,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
		tracer:    otel.Tracer("sweep"),
	}
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	leader, err := w.leader.Elect(ctx)
	if err != nil {
		w.logger.Error("sweep leader election failed", "err", err)
		w.notify(Report{}, err)
		return
	}
	if !leader {
		w.logger.Debug("sweep skipped, another instance is leader")
		w.notify(Report{}, nil)
		return
	}
	report, err := w.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("sweep failed", "err", err)
	}
	w.notify(report, err)
}

func (w *Worker) notify(r Report, err error) {
	if w.OnSweep != nil {
		w.OnSweep(r, err)
	}
}

// Sweep runs one cycle. A failing reservation is logged and counted; only a failure to
// load the snapshot aborts the cycle.
func (w *Worker) Sweep(ctx context.Context) (report Report, err error) {
	started := time.Now()
	ctx, span := w.tracer.Start(ctx, "sweep.cycle")
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.cancelled", report.Cancelled),
			attribute.Int("sweep.reminded", report.Reminded),
			attribute.Int("sweep.completed", report.Completed),
			attribute.Int("sweep.failed", report.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		w.metrics.SweepCompleted(time.Since(started), err)
	}()

	snapshot, err := w.engine.SweepSnapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("load sweep snapshot: %w", err)
	}
	now := w.engine.Now()
	tasks := Plan(snapshot, now, w.engine.Location(), w.deadlineLookup(ctx))

	for _, task := range tasks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		done, err := w.runTask(ctx, task)
		outcome := "skipped"
		switch {
		case err != nil:
			outcome = "failed"
			report.Failed++
			w.logger.Error("sweep task failed",
				"action", task.Action,
				"reservation_id", task.ReservationID,
				"service_id", task.ServiceID,
				"err", err,
			)
		case !done:
			report.Skipped++
		default:
			outcome = "done"
			switch task.Action {
			case ActionCancel:
				report.Cancelled++
			case ActionRemind:
				report.Reminded++
			case ActionComplete:
				report.Completed++
			}
		}
		w.metrics.SweepAction(string(task.Action), outcome)
	}

	w.sweeps++
	if w.cfg.ReconcileEvery > 0 && w.sweeps%w.cfg.ReconcileEvery == 0 {
		report.Reconciled = w.reconcileAll(ctx)
	}

	if len(tasks) > 0 || report.Reconciled > 0 {
		w.logger.Info("sweep finished",
			"cancelled", report.Cancelled,
			"reminded", report.Reminded,
			"completed", report.Completed,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"reconciled", report.Reconciled,
		)
	}
	return report, nil
}

func (w *Worker) deadlineLookup(ctx context.Context) func(availability.Kind) policy.Deadlines {
	cache := map[availability.Kind]policy.Deadlines{}
	fallback := policy.NewStaticProvider(policy.StaticConfig{})
	return func(kind availability.Kind) policy.Deadlines {
		if d, ok := cache[kind]; ok {
			return d
		}
		d, err := w.deadlines.Deadlines(ctx, kind)
		if err != nil {
			w.logger.Warn("deadline policy unavailable, using defaults", "kind", kind, "err", err)
			d, _ = fallback.Deadlines(ctx, kind)
		}
		cache[kind] = d
		return d
	}
}

// runTask bounds each attempt by ItemTimeout and retries lock or version contention.
func (w *Worker) runTask(ctx context.Context, task Task) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
		done, err := w.apply(itemCtx, task)
		cancel()
		if err == nil {
			return done, nil
		}
		lastErr = err
		if !booking.IsConflict(err) && !errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt) * w.cfg.RetryBackoff):
		}
	}
	return false, fmt.Errorf("gave up after %d attempts: %w", w.cfg.MaxRetries, lastErr)
}

func (w *Worker) apply(ctx context.Context, task Task) (bool, error) {
	switch task.Action {
	case ActionCancel:
		return w.engine.AutoCancel(ctx, task.ReservationID)
	case ActionRemind:
		return w.engine.SendReminder(ctx, task.ReservationID)
	case ActionComplete:
		return w.engine.Complete(ctx, task.ReservationID)
	default:
		return false, fmt.Errorf("unknown sweep action %q", task.Action)
	}
}

func (w *Worker) reconcileAll(ctx context.Context) int {
	ids, err := w.engine.ServiceIDs(ctx)
	if err != nil {
		w.logger.Error("reconcile: list services failed", "err", err)
		return 0
	}
	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed
		}
		itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
		ok, err := w.engine.Reconcile(itemCtx, id)
		cancel()
		if err != nil {
			w.logger.Error("reconcile failed", "service_id", id, "err", err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed
}
