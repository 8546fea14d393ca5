package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/petbook/libs/db"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
)

// PostgresStore serializes writers with SELECT ... FOR UPDATE and guards every update with
// a version predicate.
type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outbox.NewRepository()}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const serviceColumns = `id, provider_id, kind, name, accepted_species, duration_minutes, reservation_count, ledger, version, created_at, updated_at`

const reservationColumns = `id, client_id, pet_id, service_id, provider_id, service_kind, service_name,
	start_date, end_date, time_of_day, duration_minutes, state, contact_name, contact_email, contact_phone,
	note, reminder_sent, cancel_reason, cancelled_by, idempotency_key, created_at, updated_at,
	confirmed_at, cancelled_at, completed_at, version`

const notificationColumns = `id, recipient_id, recipient_role, reservation_id, kind, message, created_at, read, read_at`

func scanService(row rowScanner) (*model.Service, error) {
	var (
		s      model.Service
		kind   string
		ledger []byte
	)
	err := row.Scan(&s.ID, &s.ProviderID, &kind, &s.Name, &s.AcceptedSpecies, &s.DurationMinutes,
		&s.ReservationCount, &ledger, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l, err := availability.Unmarshal(ledger)
	if err != nil {
		return nil, fmt.Errorf("decode ledger for service %s: %w", s.ID, err)
	}
	if l.Kind() != availability.Kind(kind) {
		return nil, fmt.Errorf("service %s: ledger kind %s does not match %s", s.ID, l.Kind(), kind)
	}
	s.AttachLedger(l)
	return &s, nil
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		r               model.Reservation
		kind, state, by string
		start, end      time.Time
		tod             *int
	)
	err := row.Scan(&r.ID, &r.ClientID, &r.PetID, &r.ServiceID, &r.ProviderID, &kind, &r.ServiceName,
		&start, &end, &tod, &r.DurationMinutes, &state, &r.Contact.Name, &r.Contact.Email, &r.Contact.Phone,
		&r.Note, &r.ReminderSent, &r.CancelReason, &by, &r.IdempotencyKey, &r.CreatedAt, &r.UpdatedAt,
		&r.ConfirmedAt, &r.CancelledAt, &r.CompletedAt, &r.Version)
	if err != nil {
		return model.Reservation{}, err
	}
	r.ServiceKind = availability.Kind(kind)
	r.State = model.State(state)
	r.CancelledBy = model.Role(by)
	r.Dates = availability.DateRange{Start: availability.DateOf(start), End: availability.DateOf(end)}
	if tod != nil {
		t := availability.TimeOfDay(*tod)
		r.TimeOfDay = &t
	}
	return r, nil
}

func scanNotification(row rowScanner) (model.Notification, error) {
	var (
		n          model.Notification
		role, kind string
	)
	err := row.Scan(&n.ID, &n.RecipientID, &role, &n.ReservationID, &kind, &n.Message, &n.CreatedAt, &n.Read, &n.ReadAt)
	n.RecipientRole, n.Kind = model.Role(role), model.NotificationKind(kind)
	return n, err
}

func dateValue(d availability.Date) time.Time { return d.StartOfDay(time.UTC) }

// mapError translates driver errors into the booking error taxonomy.
func mapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &booking.NotFoundError{Resource: resource, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &booking.ConflictError{Reason: "duplicate " + resource, Err: err}
		case "23P01":
			return &booking.ConflictError{Reason: resource + " overlaps an existing one", Err: err}
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", booking.ErrStaleWrite, err)
		}
	}
	return err
}

func getService(ctx context.Context, q querier, id string, forUpdate bool) (*model.Service, error) {
	sql := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	s, err := scanService(q.QueryRow(ctx, sql, id))
	return s, mapError(err, "service", id)
}

func getReservation(ctx context.Context, q querier, id string, forUpdate bool) (*model.Reservation, error) {
	sql := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanReservation(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, mapError(err, "reservation", id)
	}
	return &r, nil
}

func (p *PostgresStore) GetService(ctx context.Context, id string) (*model.Service, error) {
	return getService(ctx, p.pool, id, false)
}

func (p *PostgresStore) ListServiceIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM services ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *PostgresStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, p.pool, id, false)
}

func (p *PostgresStore) FindReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.ProviderID != "" {
		add("provider_id = $%d", filter.ProviderID)
	}
	if filter.ServiceID != "" {
		add("service_id = $%d", filter.ServiceID)
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		add("state = ANY($%d)", states)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM reservations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + reservationColumns + ` FROM reservations` + cond + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Reservation, error) {
		return scanReservation(row)
	})
	return items, total, err
}

func (p *PostgresStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		sql += ` AND NOT read`
	}
	sql += ` ORDER BY seq DESC LIMIT $2`
	rows, err := p.pool.Query(ctx, sql, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		return scanNotification(row)
	})
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: p.outbox})
	})
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) GetService(ctx context.Context, id string) (*model.Service, error) {
	return getService(ctx, t.tx, id, true)
}

func (t *pgTx) SaveService(ctx context.Context, s *model.Service) error {
	ledger, err := availability.Marshal(s.Ledger())
	if err != nil {
		return err
	}
	species := s.AcceptedSpecies
	if species == nil {
		species = []string{}
	}
	if s.Version == 0 {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO services (id, provider_id, kind, name, accepted_species, duration_minutes, reservation_count, ledger, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		`, s.ID, s.ProviderID, string(s.Kind), s.Name, species, s.DurationMinutes, s.ReservationCount, ledger, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return mapError(err, "service", s.ID)
		}
		s.Version = 1
		return nil
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE services
		SET name = $3, accepted_species = $4, duration_minutes = $5, reservation_count = $6,
			ledger = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`, s.ID, s.Version, s.Name, species, s.DurationMinutes, s.ReservationCount, ledger, s.UpdatedAt)
	if err != nil {
		return mapError(err, "service", s.ID)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrStaleWrite
	}
	s.Version++
	return nil
}

func (t *pgTx) CountHeld(ctx context.Context, serviceID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM reservations WHERE service_id = $1 AND state <> $2`,
		serviceID, string(model.StateCancelada)).Scan(&n)
	return n, err
}

func (t *pgTx) HeldReservations(ctx context.Context, serviceID string) ([]model.Reservation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE service_id = $1 AND state <> $2 ORDER BY id`,
		serviceID, string(model.StateCancelada))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Reservation, error) {
		return scanReservation(row)
	})
}

func (t *pgTx) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, t.tx, id, true)
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, clientID, key string) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE client_id = $1 AND idempotency_key = $2`, clientID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) SaveReservation(ctx context.Context, r *model.Reservation) error {
	var tod *int
	if r.TimeOfDay != nil {
		v := int(*r.TimeOfDay)
		tod = &v
	}
	if r.Version == 0 {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, 1)
		`, r.ID, r.ClientID, r.PetID, r.ServiceID, r.ProviderID, string(r.ServiceKind), r.ServiceName,
			dateValue(r.Dates.Start), dateValue(r.Dates.End), tod, r.DurationMinutes, string(r.State),
			r.Contact.Name, r.Contact.Email, r.Contact.Phone, r.Note, r.ReminderSent, r.CancelReason,
			string(r.CancelledBy), r.IdempotencyKey, r.CreatedAt, r.UpdatedAt, r.ConfirmedAt, r.CancelledAt, r.CompletedAt)
		if err != nil {
			return mapError(err, "reservation", r.ID)
		}
		r.Version = 1
		return nil
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE reservations
		SET state = $3, reminder_sent = $4, cancel_reason = $5, cancelled_by = $6, updated_at = $7,
			confirmed_at = $8, cancelled_at = $9, completed_at = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`, r.ID, r.Version, string(r.State), r.ReminderSent, r.CancelReason, string(r.CancelledBy), r.UpdatedAt,
		r.ConfirmedAt, r.CancelledAt, r.CompletedAt)
	if err != nil {
		return mapError(err, "reservation", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrStaleWrite
	}
	r.Version++
	return nil
}

func (t *pgTx) AppendNotification(ctx context.Context, n model.Notification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, recipient_role, reservation_id, kind, message, created_at, read, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.RecipientID, string(n.RecipientRole), n.ReservationID, string(n.Kind), n.Message, n.CreatedAt, n.Read, n.ReadAt)
	return mapError(err, "notification", n.ID)
}

func (t *pgTx) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	n, err := scanNotification(t.tx.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err, "notification", id)
	}
	return &n, nil
}

func (t *pgTx) SaveNotification(ctx context.Context, n model.Notification) error {
	tag, err := t.tx.Exec(ctx, `UPDATE notifications SET read = $2, read_at = $3 WHERE id = $1`, n.ID, n.Read, n.ReadAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &booking.NotFoundError{Resource: "notification", ID: n.ID}
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
