package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultPrefix is used when no order number prefix is configured.
const DefaultPrefix = "RNG"

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, prefix string, draft Draft, at time.Time) (Order, error)
	MarkVoided(ctx context.Context, id uuid.UUID, reason string) error
}

// Service records finalized POS orders.
type Service struct {
	repo   RepositoryPort
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, prefix string, logger *slog.Logger) *Service {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, prefix: prefix, logger: logger, now: time.Now}
}

// Create persists the draft and assigns its number.
func (s *Service) Create(ctx context.Context, draft Draft) (Order, error) {
	if len(draft.Lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	order, err := s.repo.Insert(ctx, s.prefix, draft, s.now().UTC())
	if err != nil {
		return Order{}, fmt.Errorf("orders: create: %w", err)
	}
	s.logger.Info("pos order created", slog.String("order_id", order.ID.String()), slog.String("number", order.Number))
	return order, nil
}

// Void marks a persisted order as voided.
func (s *Service) Void(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.repo.MarkVoided(ctx, id, reason); err != nil {
		return err
	}
	s.logger.Warn("pos order voided", slog.String("order_id", id.String()), slog.String("reason", reason))
	return nil
}
