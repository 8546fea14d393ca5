package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/petbook/libs/db"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
)

// PetRepository is the local read model of the pet registry, fed by registry events.
type PetRepository struct {
	pool *db.Pool
}

func NewPetRepository(pool *db.Pool) *PetRepository {
	return &PetRepository{pool: pool}
}

func (r *PetRepository) GetPet(ctx context.Context, id string) (booking.Pet, error) {
	var p booking.Pet
	err := r.pool.QueryRow(ctx, `SELECT id, owner_id, name, species FROM pets WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Pet{}, &booking.NotFoundError{Resource: "pet", ID: id}
	}
	return p, err
}

// ApplyPetEvent records eventID in the inbox and upserts the pet in one transaction.
// It reports false when the event was already processed.
func (r *PetRepository) ApplyPetEvent(ctx context.Context, eventID string, p booking.Pet) (bool, error) {
	applied := false
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, 'pet')
			ON CONFLICT (event_id) DO NOTHING
		`, eventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pets (id, owner_id, name, species, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE
			SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name, species = EXCLUDED.species, updated_at = now()
		`, p.ID, p.OwnerID, p.Name, p.Species)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
