package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// Set by repositories that capture the caller's span.
	Traceparent string
	Tracestate  string
}

const (
	ReservationCreated   = "booking.reservation.created.v1"
	ReservationConfirmed = "booking.reservation.confirmed.v1"
	ReservationCancelled = "booking.reservation.cancelled.v1"
	ReservationCompleted = "booking.reservation.completed.v1"
	ReservationReminded  = "booking.reservation.reminded.v1"
	ServicePublished     = "booking.service.published.v1"
)

type reservationPayload struct {
	ReservationID string `json:"reservation_id"`
	ServiceID     string `json:"service_id"`
	ServiceKind   string `json:"service_kind"`
	ProviderID    string `json:"provider_id"`
	ClientID      string `json:"client_id"`
	PetID         string `json:"pet_id"`
	State         string `json:"state"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Time          string `json:"time,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

func ReservationEvent(eventType string, r model.Reservation, at time.Time) (Event, error) {
	p := reservationPayload{
		ReservationID: r.ID,
		ServiceID:     r.ServiceID,
		ServiceKind:   string(r.ServiceKind),
		ProviderID:    r.ProviderID,
		ClientID:      r.ClientID,
		PetID:         r.PetID,
		State:         string(r.State),
		StartDate:     r.Dates.Start.String(),
		EndDate:       r.Dates.End.String(),
		CancelReason:  r.CancelReason,
		CancelledBy:   string(r.CancelledBy),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
	if r.TimeOfDay != nil {
		p.Time = r.TimeOfDay.String()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "reservation", AggregateID: r.ID, EventType: eventType, Payload: body}, nil
}

func ServiceEvent(s *model.Service, at time.Time) (Event, error) {
	body, err := json.Marshal(map[string]any{
		"service_id":       s.ID,
		"provider_id":      s.ProviderID,
		"service_kind":     string(s.Kind),
		"name":             s.Name,
		"accepted_species": s.AcceptedSpecies,
		"occurred_at":      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "service", AggregateID: s.ID, EventType: ServicePublished, Payload: body}, nil
}
