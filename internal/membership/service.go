package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts wallet persistence.
type RepositoryPort interface {
	ActiveForClient(ctx context.Context, clientID uuid.UUID, now time.Time) (*Account, error)
	Apply(ctx context.Context, mv Movement) (Movement, error)
}

// Service exposes wallet lookups and balance movements.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// ActiveForClient returns the client's active wallet, or nil when the client
// has no usable membership.
func (s *Service) ActiveForClient(ctx context.Context, clientID uuid.UUID) (*Account, error) {
	if clientID == uuid.Nil {
		return nil, nil
	}
	acc, err := s.repo.ActiveForClient(ctx, clientID, s.now())
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Debit spends amount from the wallet.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) error {
	return s.move(ctx, MovementDebit, accountID, amount, reference)
}

// Credit returns amount to the wallet.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) error {
	return s.move(ctx, MovementCredit, accountID, amount, reference)
}

func (s *Service) move(ctx context.Context, typ MovementType, accountID uuid.UUID, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	mv, err := s.repo.Apply(ctx, Movement{
		AccountID: accountID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
		At:        s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("membership: %s %s: %w", typ, accountID, err)
	}
	s.logger.Info("membership balance moved",
		slog.String("account_id", accountID.String()),
		slog.String("type", string(typ)),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("balance_after", mv.BalanceAfter.StringFixed(2)),
		slog.String("reference", reference),
	)
	return nil
}
