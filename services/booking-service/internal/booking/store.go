package booking

import (
	"context"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
)

// Reader is the non-transactional query side of the repositories.
type Reader interface {
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListServiceIDs(ctx context.Context) ([]string, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// FindReservations returns the matching page and the total match count.
	// A zero filter Limit returns every match.
	FindReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
}

// Store runs units of work. Writes staged on a Tx become visible together or not at all.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is one unit of work. Reads lock or snapshot the row; saves are conditional on Version
// and fail with ErrStaleWrite when another writer got there first. A zero Version inserts.
type Tx interface {
	GetService(ctx context.Context, id string) (*model.Service, error)
	SaveService(ctx context.Context, s *model.Service) error
	CountHeld(ctx context.Context, serviceID string) (int, error)
	HeldReservations(ctx context.Context, serviceID string) ([]model.Reservation, error)

	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// FindByIdempotencyKey returns nil, nil when the key is unused.
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (*model.Reservation, error)
	SaveReservation(ctx context.Context, r *model.Reservation) error

	AppendNotification(ctx context.Context, n model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	SaveNotification(ctx context.Context, n model.Notification) error

	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Pet struct {
	ID      string
	OwnerID string
	Name    string
	Species string
}

// PetLookup resolves pets registered outside this service. Unknown pets yield a NotFoundError.
type PetLookup interface {
	GetPet(ctx context.Context, id string) (Pet, error)
}
