package metrics

import (
	"strconv"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingAttempts *prometheus.CounterVec
	Transitions     *prometheus.CounterVec

	SweepActions   *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	SweepFailures  prometheus.Counter
	LastSweepStamp prometheus.Gauge

	OutboxPublished prometheus.Counter
	PetEvents       *prometheus.CounterVec
}

// NewCollector registers every metric on reg under the given namespace.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),

		BookingAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Reservation create attempts by service kind and outcome.",
		}, []string{"kind", "outcome"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Committed reservation state transitions by target state and actor role.",
		}, []string{"state", "by"}),

		SweepActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "actions_total",
			Help:      "Per-reservation sweep actions by action and outcome.",
		}, []string{"action", "outcome"}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of one sweep cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),

		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "cycle_failures_total",
			Help:      "Sweep cycles that could not load their snapshot. Alert if increasing.",
		}),

		LastSweepStamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last sweep that completed.",
		}),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events delivered to Kafka.",
		}),

		PetEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "pet_events_total",
			Help:      "Pet registry events by outcome.",
		}, []string{"outcome"}),
	}
}

func (c *Collector) BookingAttempt(kind availability.Kind, outcome string) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	c.BookingAttempts.WithLabelValues(k, outcome).Inc()
}

func (c *Collector) Transition(to model.State, by model.Role) {
	c.Transitions.WithLabelValues(string(to), string(by)).Inc()
}

func (c *Collector) SweepAction(action, outcome string) {
	c.SweepActions.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) SweepCompleted(elapsed time.Duration, err error) {
	c.SweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.SweepFailures.Inc()
		return
	}
	c.LastSweepStamp.SetToCurrentTime()
}

// ObserveHTTP matches httpx.Observer.
func (c *Collector) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (c *Collector) Published(n int) { c.OutboxPublished.Add(float64(n)) }

func (c *Collector) PetEvent(outcome string) { c.PetEvents.WithLabelValues(outcome).Inc() }
