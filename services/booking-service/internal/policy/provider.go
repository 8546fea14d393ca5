package policy

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
)

const (
	DefaultSlotPendingLead  = 2 * time.Hour
	DefaultRangePendingLead = 12 * time.Hour
	DefaultReminderLead     = 60 * time.Minute
)

// Deadlines drive the time-based passes of the sweep for one service kind.
type Deadlines struct {
	// PendingLead is how long before the start a pending booking must be confirmed.
	// Range bookings measure it from the start of their first day.
	PendingLead time.Duration
	// ReminderLead applies to time-of-day bookings; range bookings are reminded on their start day.
	ReminderLead time.Duration
}

type Provider interface {
	Deadlines(ctx context.Context, kind availability.Kind) (Deadlines, error)
}

type staticProvider struct {
	slot Deadlines
	rng  Deadlines
}

type StaticConfig struct {
	SlotPendingLead  time.Duration
	RangePendingLead time.Duration
	ReminderLead     time.Duration
}

func NewStaticProvider(cfg StaticConfig) Provider {
	if cfg.SlotPendingLead <= 0 {
		cfg.SlotPendingLead = DefaultSlotPendingLead
	}
	if cfg.RangePendingLead <= 0 {
		cfg.RangePendingLead = DefaultRangePendingLead
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = DefaultReminderLead
	}
	return &staticProvider{
		slot: Deadlines{PendingLead: cfg.SlotPendingLead, ReminderLead: cfg.ReminderLead},
		rng:  Deadlines{PendingLead: cfg.RangePendingLead, ReminderLead: cfg.ReminderLead},
	}
}

func (p *staticProvider) Deadlines(_ context.Context, kind availability.Kind) (Deadlines, error) {
	if kind == availability.KindRange {
		return p.rng, nil
	}
	return p.slot, nil
}
