package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/petbook/libs/kafkax"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

type fakeWriter struct {
	err   error
	calls int
	msgs  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testPublisher() *Publisher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Publisher{logger: logger, breaker: newBreaker(logger)}
}

func TestSendBuildsMessages(t *testing.T) {
	p := testPublisher()
	w := &fakeWriter{}
	records := []Record{{ID: 1, EventID: "evt-1", AggregateID: "res-1", EventType: ReservationCreated, Payload: []byte(`{}`)}}

	if err := p.send(context.Background(), w, records); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != ReservationCreated || string(msg.Key) != "res-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) != "evt-1" {
		t.Fatalf("event_id header missing: %+v", msg.Headers)
	}
}

func TestSendOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	p := testPublisher()
	w := &fakeWriter{err: errors.New("broker down")}
	records := []Record{{ID: 1, EventType: ReservationCreated}}

	for i := 0; i < 5; i++ {
		if err := p.send(context.Background(), w, records); err == nil {
			t.Fatalf("attempt %d: expected error", i+1)
		}
	}
	err := p.send(context.Background(), w, records)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if w.calls != 5 {
		t.Fatalf("writer must not be called while open, got %d calls", w.calls)
	}
}

func TestReservationEventPayload(t *testing.T) {
	nine := availability.NewTimeOfDay(9, 0)
	day := availability.NewDate(2024, time.June, 3)
	r := model.Reservation{
		ID: "res-1", ServiceID: "svc-1", ServiceKind: availability.KindAppointment,
		ProviderID: "prov-1", ClientID: "client-1", PetID: "pet-1",
		State: model.StateCancelada, Dates: availability.DateRange{Start: day, End: day}, TimeOfDay: &nine,
		CancelReason: "viaje", CancelledBy: model.RoleClient,
	}
	evt, err := ReservationEvent(ReservationCancelled, r, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReservationEvent failed: %v", err)
	}
	if evt.AggregateID != "res-1" || evt.EventType != ReservationCancelled {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var body map[string]string
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if body["time"] != "09:00" || body["state"] != "CANCELADA" || body["cancelled_by"] != "client" || body["occurred_at"] != "2024-06-01T10:00:00Z" {
		t.Fatalf("unexpected payload %v", body)
	}
}
