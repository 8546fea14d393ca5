// Package notify turns reservation events into inbox messages. It has no side effects.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

var serviceNoun = map[availability.Kind]string{
	availability.KindAppointment:  "turno veterinario",
	availability.KindCapacitySlot: "paseo",
	availability.KindRange:        "cuidado",
}

// Recipient returns who receives a notification of the given kind.
func Recipient(r model.Reservation, kind model.NotificationKind) (string, model.Role, error) {
	switch kind {
	case model.NotifyCreated, model.NotifyCancelledByClient:
		return r.ProviderID, model.RoleProvider, nil
	case model.NotifyConfirmed, model.NotifyCancelledByProvider, model.NotifyAutoCancelled, model.NotifyReminder:
		return r.ClientID, model.RoleClient, nil
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}
}

// Message renders the text for kind. Range bookings are described as a span, everything
// else as a single date and time.
func Message(r model.Reservation, kind model.NotificationKind) (string, error) {
	subject := describeService(r)
	when := describeWhen(r)

	var msg string
	switch kind {
	case model.NotifyCreated:
		msg = fmt.Sprintf("Nueva solicitud de %s %s.", subject, when)
	case model.NotifyConfirmed:
		msg = fmt.Sprintf("Tu reserva de %s %s fue confirmada.", subject, when)
	case model.NotifyCancelledByClient:
		msg = fmt.Sprintf("El cliente canceló la reserva de %s %s.", subject, when) + reasonSuffix(r.CancelReason)
	case model.NotifyCancelledByProvider:
		msg = fmt.Sprintf("El prestador canceló tu reserva de %s %s.", subject, when) + reasonSuffix(r.CancelReason)
	case model.NotifyAutoCancelled:
		msg = fmt.Sprintf("Tu reserva de %s %s fue cancelada automáticamente porque el prestador no la confirmó a tiempo.", subject, when)
	case model.NotifyReminder:
		if r.ServiceKind == availability.KindRange {
			msg = fmt.Sprintf("Recordatorio: hoy comienza tu reserva de %s, %s.", subject, when)
		} else {
			msg = fmt.Sprintf("Recordatorio: tu reserva de %s es %s.", subject, when)
		}
	default:
		return "", fmt.Errorf("unknown notification kind %q", kind)
	}
	return msg, nil
}

// New builds the notification for kind. id and at come from the caller.
func New(r model.Reservation, kind model.NotificationKind, id string, at time.Time) (model.Notification, error) {
	recipient, role, err := Recipient(r, kind)
	if err != nil {
		return model.Notification{}, err
	}
	msg, err := Message(r, kind)
	if err != nil {
		return model.Notification{}, err
	}
	return model.Notification{
		ID:            id,
		RecipientID:   recipient,
		RecipientRole: role,
		ReservationID: r.ID,
		Kind:          kind,
		Message:       msg,
		CreatedAt:     at,
	}, nil
}

func describeService(r model.Reservation) string {
	noun, ok := serviceNoun[r.ServiceKind]
	if !ok {
		noun = "servicio"
	}
	if name := strings.TrimSpace(r.ServiceName); name != "" {
		return fmt.Sprintf("%s \"%s\"", noun, name)
	}
	return noun
}

func describeWhen(r model.Reservation) string {
	if r.ServiceKind == availability.KindRange || r.TimeOfDay == nil {
		return fmt.Sprintf("desde el %s hasta el %s", r.Dates.Start.Display(), r.Dates.End.Display())
	}
	return fmt.Sprintf("el %s a las %s", r.Dates.Start.Display(), r.TimeOfDay.String())
}

func reasonSuffix(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ""
	}
	return " Motivo: " + reason + "."
}
