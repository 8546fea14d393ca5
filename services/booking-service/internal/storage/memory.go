package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps everything in process. Transactions stage their writes and validate
// record versions at commit, mirroring the conditional updates of the Postgres store.
type MemoryStore struct {
	mu            sync.Mutex
	services      map[string]*model.Service
	reservations  map[string]*model.Reservation
	notifications map[string]*model.Notification
	notifySeq     map[string]int
	seq           int
	events        []outbox.Event
	pets          map[string]booking.Pet
	inbox         map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:      map[string]*model.Service{},
		reservations:  map[string]*model.Reservation{},
		notifications: map[string]*model.Notification{},
		notifySeq:     map[string]int{},
		pets:          map[string]booking.Pet{},
		inbox:         map[string]struct{}{},
	}
}

func (m *MemoryStore) GetService(_ context.Context, id string) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, &booking.NotFoundError{Resource: "service", ID: id}
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListServiceIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.services))
	for id := range m.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, &booking.NotFoundError{Resource: "reservation", ID: id}
	}
	return cloneReservation(r), nil
}

func (m *MemoryStore) FindReservations(_ context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error) {
	m.mu.Lock()
	var matched []model.Reservation
	for _, r := range m.reservations {
		if filter.Matches(*r) {
			matched = append(matched, *cloneReservation(r))
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return []model.Reservation{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return m.notifySeq[out[i].ID] > m.notifySeq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every outbox event committed so far, oldest first.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func (m *MemoryStore) AddPet(p booking.Pet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[p.ID] = p
}

func (m *MemoryStore) GetPet(_ context.Context, id string) (booking.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pets[id]
	if !ok {
		return booking.Pet{}, &booking.NotFoundError{Resource: "pet", ID: id}
	}
	return p, nil
}

// ApplyPetEvent upserts a pet once per event id.
func (m *MemoryStore) ApplyPetEvent(_ context.Context, eventID string, p booking.Pet) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.inbox[eventID]; seen {
		return false, nil
	}
	m.inbox[eventID] = struct{}{}
	m.pets[p.ID] = p
	return true, nil
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx := &memTx{
		store:         m,
		services:      map[string]*model.Service{},
		serviceBase:   map[string]int64{},
		reservations:  map[string]*model.Reservation{},
		resBase:       map[string]int64{},
		notifications: map[string]*model.Notification{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	store *MemoryStore

	services      map[string]*model.Service
	serviceBase   map[string]int64
	reservations  map[string]*model.Reservation
	resBase       map[string]int64
	created       []string
	notifications map[string]*model.Notification
	notifyOrder   []string
	events        []outbox.Event
}

func (t *memTx) GetService(ctx context.Context, id string) (*model.Service, error) {
	if s, ok := t.services[id]; ok {
		return s.Clone(), nil
	}
	return t.store.GetService(ctx, id)
}

func (t *memTx) SaveService(_ context.Context, s *model.Service) error {
	current := t.versionOfService(s.ID)
	if current != s.Version {
		return booking.ErrStaleWrite
	}
	if _, staged := t.serviceBase[s.ID]; !staged {
		t.serviceBase[s.ID] = s.Version
	}
	s.Version++
	t.services[s.ID] = s.Clone()
	return nil
}

func (t *memTx) versionOfService(id string) int64 {
	if s, ok := t.services[id]; ok {
		return s.Version
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if s, ok := t.store.services[id]; ok {
		return s.Version
	}
	return 0
}

func (t *memTx) CountHeld(ctx context.Context, serviceID string) (int, error) {
	held, err := t.HeldReservations(ctx, serviceID)
	return len(held), err
}

func (t *memTx) HeldReservations(_ context.Context, serviceID string) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.mergedReservations() {
		if r.ServiceID == serviceID && r.State.HoldsCapacity() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) mergedReservations() map[string]*model.Reservation {
	t.store.mu.Lock()
	merged := make(map[string]*model.Reservation, len(t.store.reservations)+len(t.reservations))
	for id, r := range t.store.reservations {
		merged[id] = cloneReservation(r)
	}
	t.store.mu.Unlock()
	for id, r := range t.reservations {
		merged[id] = cloneReservation(r)
	}
	return merged
}

func (t *memTx) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	if r, ok := t.reservations[id]; ok {
		return cloneReservation(r), nil
	}
	return t.store.GetReservation(ctx, id)
}

func (t *memTx) FindByIdempotencyKey(_ context.Context, clientID, key string) (*model.Reservation, error) {
	for _, r := range t.mergedReservations() {
		if r.ClientID == clientID && r.IdempotencyKey == key {
			return r, nil
		}
	}
	return nil, nil
}

func (t *memTx) SaveReservation(_ context.Context, r *model.Reservation) error {
	var current int64
	if staged, ok := t.reservations[r.ID]; ok {
		current = staged.Version
	} else {
		t.store.mu.Lock()
		if stored, ok := t.store.reservations[r.ID]; ok {
			current = stored.Version
		}
		t.store.mu.Unlock()
	}
	if current != r.Version {
		return booking.ErrStaleWrite
	}
	if _, staged := t.resBase[r.ID]; !staged {
		t.resBase[r.ID] = r.Version
		if r.Version == 0 {
			t.created = append(t.created, r.ID)
		}
	}
	r.Version++
	t.reservations[r.ID] = cloneReservation(r)
	return nil
}

func (t *memTx) AppendNotification(_ context.Context, n model.Notification) error {
	cp := n
	t.notifications[n.ID] = &cp
	t.notifyOrder = append(t.notifyOrder, n.ID)
	return nil
}

func (t *memTx) GetNotification(_ context.Context, id string) (*model.Notification, error) {
	if n, ok := t.notifications[id]; ok {
		cp := *n
		return &cp, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	n, ok := t.store.notifications[id]
	if !ok {
		return nil, &booking.NotFoundError{Resource: "notification", ID: id}
	}
	cp := *n
	return &cp, nil
}

func (t *memTx) SaveNotification(_ context.Context, n model.Notification) error {
	if _, ok := t.notifications[n.ID]; !ok {
		t.store.mu.Lock()
		_, exists := t.store.notifications[n.ID]
		t.store.mu.Unlock()
		if !exists {
			return &booking.NotFoundError{Resource: "notification", ID: n.ID}
		}
	}
	cp := n
	t.notifications[n.ID] = &cp
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, base := range t.serviceBase {
		var current int64
		if s, ok := m.services[id]; ok {
			current = s.Version
		}
		if current != base {
			return booking.ErrStaleWrite
		}
	}
	for id, base := range t.resBase {
		var current int64
		if r, ok := m.reservations[id]; ok {
			current = r.Version
		}
		if current != base {
			return booking.ErrStaleWrite
		}
	}
	for _, id := range t.created {
		r := t.reservations[id]
		if r.IdempotencyKey == "" {
			continue
		}
		for _, other := range m.reservations {
			if other.ClientID == r.ClientID && other.IdempotencyKey == r.IdempotencyKey {
				return &booking.ConflictError{Reason: "idempotency key already used"}
			}
		}
	}

	for id, s := range t.services {
		m.services[id] = s
	}
	for id, r := range t.reservations {
		m.reservations[id] = r
	}
	for id, n := range t.notifications {
		m.notifications[id] = n
	}
	for _, id := range t.notifyOrder {
		m.seq++
		m.notifySeq[id] = m.seq
	}
	m.events = append(m.events, t.events...)
	return nil
}

func cloneReservation(r *model.Reservation) *model.Reservation {
	cp := *r
	if r.TimeOfDay != nil {
		t := *r.TimeOfDay
		cp.TimeOfDay = &t
	}
	cp.ConfirmedAt = cloneTime(r.ConfirmedAt)
	cp.CancelledAt = cloneTime(r.CancelledAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
