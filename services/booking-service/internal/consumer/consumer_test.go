package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/petbook/libs/kafkax"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/segmentio/kafka-go"
)

type fakeSink struct {
	seen map[string]bool
	pets map[string]booking.Pet
	err  error
}

func (f *fakeSink) ApplyPetEvent(_ context.Context, eventID string, p booking.Pet) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	f.pets[p.ID] = p
	return true, nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func petMessage(offset int64, eventID, eventType, body string) kafka.Message {
	return kafka.Message{
		Topic:   "pets",
		Offset:  offset,
		Value:   []byte(body),
		Headers: kafkax.EventMeta{EventID: eventID, EventType: eventType}.Headers(),
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleOutcomes(t *testing.T) {
	sink := &fakeSink{seen: map[string]bool{}, pets: map[string]booking.Pet{}}
	c := NewWithReader(discard(), sink, &fakeReader{})
	body := `{"pet_id":"pet-1","owner_id":"client-1","name":"Luna","species":" Perro "}`

	cases := []struct {
		name string
		msg  kafka.Message
		want string
	}{
		{"registered", petMessage(1, "e1", PetRegistered, body), "applied"},
		{"duplicate", petMessage(2, "e1", PetRegistered, body), "duplicate"},
		{"updated", petMessage(3, "e2", PetUpdated, body), "applied"},
		{"unknown type", petMessage(4, "e3", "pets.pet.deleted.v1", body), "malformed"},
		{"bad json", petMessage(5, "e4", PetUpdated, "{"), "malformed"},
		{"missing species", petMessage(6, "e5", PetUpdated, `{"pet_id":"p","owner_id":"o"}`), "malformed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := c.Handle(context.Background(), tc.msg)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
	if sink.pets["pet-1"].Species != "perro" {
		t.Fatalf("species not normalised: %+v", sink.pets["pet-1"])
	}
}

func TestRunLeavesFailedMessagesUncommitted(t *testing.T) {
	sink := &fakeSink{seen: map[string]bool{}, pets: map[string]booking.Pet{}}
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		petMessage(1, "e1", PetRegistered, `{"pet_id":"p1","owner_id":"o","species":"gato"}`),
		petMessage(2, "e2", PetRegistered, "{"),
	}}
	c := NewWithReader(discard(), sink, reader)

	var outcomes []string
	c.OnMessage = func(o string) { outcomes = append(outcomes, o) }
	c.Run(ctx)

	if len(reader.committed) != 2 {
		t.Fatalf("expected applied and malformed messages committed, got %v", reader.committed)
	}

	sink.err = errors.New("db down")
	ctx, cancel = context.WithCancel(context.Background())
	reader = &fakeReader{cancel: cancel, msgs: []kafka.Message{
		petMessage(3, "e3", PetRegistered, `{"pet_id":"p2","owner_id":"o","species":"gato"}`),
	}}
	c = NewWithReader(discard(), sink, reader)
	c.Run(ctx)
	if len(reader.committed) != 0 {
		t.Fatalf("failed message was committed: %v", reader.committed)
	}
	if len(outcomes) != 2 || outcomes[0] != "applied" || outcomes[1] != "malformed" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}
