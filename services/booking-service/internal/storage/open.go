package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/petbook/libs/db"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
)

// PetStore is the pets cache as seen by the engine and by the registry consumer.
type PetStore interface {
	booking.PetLookup
	ApplyPetEvent(ctx context.Context, eventID string, p booking.Pet) (bool, error)
}

// Backend bundles the repositories one process works against. Pool is nil for the
// memory driver.
type Backend struct {
	Store booking.Store
	Pets  PetStore
	Pool  *db.Pool
}

func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// Open connects the configured driver. With migrate set, pending migrations are applied
// before the backend is returned.
func Open(ctx context.Context, driver, databaseURL string, migrate bool) (*Backend, error) {
	switch driver {
	case "memory":
		m := NewMemoryStore()
		return &Backend{Store: m, Pets: m}, nil
	case "postgres":
		pool, err := db.Open(ctx, databaseURL, db.Options{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if migrate {
			if err := Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return &Backend{Store: NewPostgresStore(pool), Pets: NewPetRepository(pool), Pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
