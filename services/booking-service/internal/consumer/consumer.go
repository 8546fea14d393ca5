// Package consumer keeps the local pet registry cache current from pet events.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/libs/kafkax"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PetRegistered = "pets.pet.registered.v1"
	PetUpdated    = "pets.pet.updated.v1"
)

// ErrMalformed marks messages that will never decode; they are committed and skipped.
var ErrMalformed = errors.New("malformed pet event")

// PetSink applies a pet event at most once per event id.
type PetSink interface {
	ApplyPetEvent(ctx context.Context, eventID string, pet booking.Pet) (bool, error)
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	sink   PetSink
	logger *slog.Logger
	tracer trace.Tracer
	// OnMessage receives "applied", "duplicate", "malformed" or "error".
	OnMessage func(outcome string)
}

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, sink PetSink, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(logger, sink, reader)
}

func NewWithReader(logger *slog.Logger, sink PetSink, reader MessageReader) *Consumer {
	return &Consumer{reader: reader, sink: sink, logger: logger, tracer: otel.Tracer("kafka")}
}

type petPayload struct {
	PetID   string `json:"pet_id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Species string `json:"species"`
}

// Run commits each message once it is applied, skipped as a duplicate, or found malformed.
// Other failures leave the offset uncommitted so the message is redelivered.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		outcome, err := c.Handle(ctx, msg)
		c.observe(outcome)
		if err != nil && !errors.Is(err, ErrMalformed) {
			c.logger.Error("pet event failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			continue
		}
		if err != nil {
			c.logger.Warn("pet event skipped", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) observe(outcome string) {
	if c.OnMessage != nil {
		c.OnMessage(outcome)
	}
}

// Handle decodes and applies one message.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (outcome string, err error) {
	ctx = kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := c.tracer.Start(ctx, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	switch meta.EventType {
	case PetRegistered, PetUpdated:
	default:
		return "malformed", fmt.Errorf("%w: unexpected event type %q", ErrMalformed, meta.EventType)
	}

	var p petPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return "malformed", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	pet := booking.Pet{
		ID:      strings.TrimSpace(p.PetID),
		OwnerID: strings.TrimSpace(p.OwnerID),
		Name:    strings.TrimSpace(p.Name),
		Species: strings.ToLower(strings.TrimSpace(p.Species)),
	}
	if pet.ID == "" || pet.OwnerID == "" || pet.Species == "" {
		return "malformed", fmt.Errorf("%w: pet_id, owner_id and species are required", ErrMalformed)
	}

	applied, err := c.sink.ApplyPetEvent(ctx, meta.EventID, pet)
	if err != nil {
		return "error", fmt.Errorf("apply pet event %s: %w", meta.EventID, err)
	}
	if !applied {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return "duplicate", nil
	}
	c.logger.Debug("pet cached", "pet_id", pet.ID, "event_id", meta.EventID)
	return "applied", nil
}
