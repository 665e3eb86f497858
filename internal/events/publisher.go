// Package events publishes POS order events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// EventType names an order event.
type EventType string

const (
	EventTypeOrderFinalized   EventType = "order.finalized"
	EventTypeOrderCompensated EventType = "order.compensated"
)

// Envelope wraps every event written to the topic.
type Envelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	OrderID       string          `json:"order_id"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// Payment is one settlement rail in an event payload.
type Payment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderFinalized is published after an order was persisted and stock moved.
type OrderFinalized struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	ClientID          uuid.UUID       `json:"client_id"`
	StylistID         uuid.UUID       `json:"stylist_id"`
	PayableTotal      decimal.Decimal `json:"payable_total"`
	TaxTotal          decimal.Decimal `json:"tax_total"`
	MembershipSettled decimal.Decimal `json:"membership_settled"`
	Payments          []Payment       `json:"payments"`
	FinalizedAt       time.Time       `json:"finalized_at"`
}

// OrderCompensated is published when a finalize attempt was rolled back.
type OrderCompensated struct {
	SessionID uuid.UUID `json:"session_id"`
	OrderID   uuid.UUID `json:"order_id,omitempty"`
	FailedAt  string    `json:"failed_at"`
	Reason    string    `json:"reason"`
	Steps     []string  `json:"steps"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(writer, logger)
}

func newPublisher(writer messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishOrderFinalized publishes an order.finalized event keyed by order id.
func (p *KafkaPublisher) PublishOrderFinalized(ctx context.Context, evt OrderFinalized) error {
	return p.publish(ctx, EventTypeOrderFinalized, evt.OrderID.String(), evt)
}

// PublishOrderCompensated publishes an order.compensated event keyed by session id.
func (p *KafkaPublisher) PublishOrderCompensated(ctx context.Context, evt OrderCompensated) error {
	return p.publish(ctx, EventTypeOrderCompensated, evt.SessionID.String(), evt)
}

func (p *KafkaPublisher) publish(ctx context.Context, typ EventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		ID:            uuid.NewString(),
		Type:          typ,
		OrderID:       key,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.GetReqID(ctx),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(typ)},
			{Key: "event_id", Value: []byte(env.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish event", slog.String("event_type", string(typ)), slog.String("key", key), slog.Any("error", err))
		return err
	}
	p.logger.Debug("event published", slog.String("event_id", env.ID), slog.String("event_type", string(typ)))
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderFinalized(context.Context, OrderFinalized) error     { return nil }
func (NopPublisher) PublishOrderCompensated(context.Context, OrderCompensated) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }
