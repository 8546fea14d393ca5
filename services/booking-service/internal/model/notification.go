package model

import "time"

type NotificationKind string

const (
	NotifyCreated             NotificationKind = "created"
	NotifyConfirmed           NotificationKind = "confirmed"
	NotifyCancelledByClient   NotificationKind = "cancelled_by_client"
	NotifyCancelledByProvider NotificationKind = "cancelled_by_provider"
	NotifyAutoCancelled       NotificationKind = "auto_cancelled"
	NotifyReminder            NotificationKind = "reminder"
)

// Notification belongs to exactly one inbox. Only Read and ReadAt ever change after creation.
type Notification struct {
	ID            string
	RecipientID   string
	RecipientRole Role
	ReservationID string
	Kind          NotificationKind
	Message       string
	CreatedAt     time.Time
	Read          bool
	ReadAt        *time.Time
}

// MarkRead reports whether the notification changed.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	return true
}
