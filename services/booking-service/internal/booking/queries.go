package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

type ListQuery struct {
	OwnerID   string
	OwnerRole model.Role
	States    []model.State
	Page      model.Page
}

type ReservationDTO struct {
	ID           string  `json:"id"`
	ServiceID    string  `json:"service_id"`
	ServiceKind  string  `json:"service_kind"`
	ServiceName  string  `json:"service_name,omitempty"`
	ClientID     string  `json:"client_id"`
	ProviderID   string  `json:"provider_id"`
	PetID        string  `json:"pet_id"`
	State        string  `json:"state"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Time         string  `json:"time,omitempty"`
	StartsAt     string  `json:"starts_at"`
	ContactName  string  `json:"contact_name,omitempty"`
	ContactEmail string  `json:"contact_email,omitempty"`
	ContactPhone string  `json:"contact_phone,omitempty"`
	Note         string  `json:"note,omitempty"`
	ReminderSent bool    `json:"reminder_sent"`
	CancelReason string  `json:"cancel_reason,omitempty"`
	CancelledBy  string  `json:"cancelled_by,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ConfirmedAt  *string `json:"confirmed_at,omitempty"`
	CancelledAt  *string `json:"cancelled_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type ReservationPage struct {
	Items    []ReservationDTO `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
}

func NewReservationDTO(r model.Reservation, loc *time.Location) ReservationDTO {
	dto := ReservationDTO{
		ID:           r.ID,
		ServiceID:    r.ServiceID,
		ServiceKind:  string(r.ServiceKind),
		ServiceName:  r.ServiceName,
		ClientID:     r.ClientID,
		ProviderID:   r.ProviderID,
		PetID:        r.PetID,
		State:        string(r.State),
		StartDate:    r.Dates.Start.String(),
		EndDate:      r.Dates.End.String(),
		StartsAt:     r.StartsAt(loc).Format(time.RFC3339),
		ContactName:  r.Contact.Name,
		ContactEmail: r.Contact.Email,
		ContactPhone: r.Contact.Phone,
		Note:         r.Note,
		ReminderSent: r.ReminderSent,
		CancelReason: r.CancelReason,
		CancelledBy:  string(r.CancelledBy),
		CreatedAt:    r.CreatedAt.In(loc).Format(time.RFC3339),
		ConfirmedAt:  formatOptional(r.ConfirmedAt, loc),
		CancelledAt:  formatOptional(r.CancelledAt, loc),
		CompletedAt:  formatOptional(r.CompletedAt, loc),
	}
	if r.TimeOfDay != nil {
		dto.Time = r.TimeOfDay.String()
	}
	return dto
}

func formatOptional(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := t.In(loc).Format(time.RFC3339)
	return &s
}

// List pages through the reservations a client made or a provider received, newest first.
func (e *Engine) List(ctx context.Context, q ListQuery) (ReservationPage, error) {
	q.OwnerID = strings.TrimSpace(q.OwnerID)
	if q.OwnerID == "" {
		return ReservationPage{}, invalid("owner", "required")
	}
	filter := model.ReservationFilter{States: q.States}
	switch q.OwnerRole {
	case model.RoleClient:
		filter.ClientID = q.OwnerID
	case model.RoleProvider:
		filter.ProviderID = q.OwnerID
	default:
		return ReservationPage{}, invalid("role", "must be client or provider")
	}
	page := q.Page.Normalize()
	filter.Limit, filter.Offset = page.Size, page.Offset()

	items, total, err := e.store.FindReservations(ctx, filter)
	if err != nil {
		return ReservationPage{}, err
	}
	out := ReservationPage{Items: make([]ReservationDTO, 0, len(items)), Page: page.Number, PageSize: page.Size, Total: total}
	for _, r := range items {
		out.Items = append(out.Items, NewReservationDTO(r, e.loc))
	}
	return out, nil
}

// Notifications returns a user's inbox, newest first.
func (e *Engine) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("user", "required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkNotificationRead is idempotent. Notifications addressed to someone else are not found.
func (e *Engine) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*model.Notification, error) {
	var out model.Notification
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.GetNotification(ctx, notificationID)
		if err != nil {
			return err
		}
		if n.RecipientID != userID {
			return notFound("notification", notificationID)
		}
		if n.MarkRead(e.now()) {
			if err := tx.SaveNotification(ctx, *n); err != nil {
				return err
			}
		}
		out = *n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
