package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox/payloads"
)

// Route says where an event type goes and what its payload must decode to.
type Route struct {
	Topic     string
	Aggregate enums.OutboxAggregateType
	payload   func() any
}

// Routes maps each publishable event type to its route.
type Routes map[enums.OutboxEventType]Route

// Message is an outbox row ready for the broker.
type Message struct {
	Topic      string
	EventID    string
	Data       []byte
	Attributes map[string]string
}

func NewRoutes(cfg config.PubSubConfig) (Routes, error) {
	if cfg.OrdersTopic == "" || cfg.PaymentsTopic == "" {
		return nil, errors.New("orders and payments topics are required")
	}
	payment := func() any { return &payloads.PaymentStatusEvent{} }
	return Routes{
		enums.EventOrderCreated: {
			Topic:     cfg.OrdersTopic,
			Aggregate: enums.AggregateOrder,
			payload:   func() any { return &payloads.OrderCreatedEvent{} },
		},
		enums.EventPaymentSucceeded: {Topic: cfg.PaymentsTopic, Aggregate: enums.AggregatePayment, payload: payment},
		enums.EventPaymentFailed:    {Topic: cfg.PaymentsTopic, Aggregate: enums.AggregatePayment, payload: payment},
	}, nil
}

// Build validates the row against its route and produces the broker message.
// Every error it returns is permanent.
func (r Routes) Build(event models.OutboxEvent) (*Message, error) {
	route, ok := r[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", event.EventType))
	}
	if route.Aggregate != event.AggregateType {
		return nil, Permanent(fmt.Errorf("event %s carries aggregate %s, want %s", event.EventType, event.AggregateType, route.Aggregate))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate id missing"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", event.EventType))
	}
	if err := json.Unmarshal(data, route.payload()); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &Message{
		Topic:   route.Topic,
		EventID: envelope.EventID,
		Data:    event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"schema_version": strconv.Itoa(envelope.Version),
		},
	}, nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that no amount of retrying will fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
