package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishOrderFinalized(t *testing.T) {
	writer := &captureWriter{}
	pub := newPublisher(writer, nil)
	orderID := uuid.New()
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	err := pub.PublishOrderFinalized(ctx, OrderFinalized{
		OrderID:      orderID,
		OrderNumber:  "RNG0001/2627",
		PayableTotal: decimal.NewFromInt(1180),
		Payments:     []Payment{{Method: "cash", Amount: decimal.NewFromInt(1180)}},
		FinalizedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, orderID.String(), string(msg.Key))
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, string(EventTypeOrderFinalized), string(msg.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	require.Equal(t, EventTypeOrderFinalized, env.Type)
	require.Equal(t, "req-42", env.CorrelationID)

	var payload OrderFinalized
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, "RNG0001/2627", payload.OrderNumber)
	require.True(t, payload.PayableTotal.Equal(decimal.NewFromInt(1180)))

	require.NoError(t, pub.Close())
	require.True(t, writer.closed)
}

func TestPublishErrorPropagates(t *testing.T) {
	writer := &captureWriter{err: errors.New("broker down")}
	pub := newPublisher(writer, nil)
	err := pub.PublishOrderCompensated(context.Background(), OrderCompensated{SessionID: uuid.New(), FailedAt: "stock_decrement"})
	require.EqualError(t, err, "broker down")
}

func TestNopPublisher(t *testing.T) {
	var pub NopPublisher
	require.NoError(t, pub.PublishOrderFinalized(context.Background(), OrderFinalized{}))
	require.NoError(t, pub.PublishOrderCompensated(context.Background(), OrderCompensated{}))
	require.NoError(t, pub.Close())
}
