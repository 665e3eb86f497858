package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderFinalized runs follow-up work for a finalized POS order.
	TaskOrderFinalized = "pos:order-finalized"
	// TaskIdempotencyCleanup prunes expired finalize keys.
	TaskIdempotencyCleanup = "pos:idempotency-cleanup"
)

// OrderFinalizedPayload describes a finalized order.
type OrderFinalizedPayload struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	ClientID          uuid.UUID       `json:"client_id"`
	ProductIDs        []uuid.UUID     `json:"product_ids"`
	MembershipDebited decimal.Decimal `json:"membership_debited"`
	FinalizedAt       time.Time       `json:"finalized_at"`
}

// NewOrderFinalizedTask constructs an Asynq task. The order id doubles as the
// task id so a retried enqueue does not run the follow-up twice.
func NewOrderFinalizedTask(payload OrderFinalizedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderFinalized, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID("order-finalized:"+payload.OrderID.String()),
		asynq.MaxRetry(5),
	), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
