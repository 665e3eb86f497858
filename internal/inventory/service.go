package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rng-salon/salon-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Balances(ctx context.Context, productIDs []uuid.UUID) ([]Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against posting the same movement twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates product stock movements.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	now         func() time.Time
}

// NewService builds Service. audit and idem may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, now: time.Now}
}

// Decrement takes sold units off the shelf. It never drives stock negative.
func (s *Service) Decrement(ctx context.Context, input MovementInput) (Movement, error) {
	if input.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, MovementOut, -input.Qty, input)
}

// Restock puts units back, used when a sale is rolled back.
func (s *Service) Restock(ctx context.Context, input MovementInput) (Movement, error) {
	if input.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, MovementIn, input.Qty, input)
}

// LowStock returns the products among ids that reached their reorder level.
func (s *Service) LowStock(ctx context.Context, ids []uuid.UUID) ([]Balance, error) {
	balances, err := s.repo.Balances(ctx, ids)
	if err != nil {
		return nil, err
	}
	var low []Balance
	for _, b := range balances {
		if b.Low() {
			low = append(low, b)
		}
	}
	return low, nil
}

func (s *Service) postMovement(ctx context.Context, typ MovementType, qtyChange int, input MovementInput) (Movement, error) {
	if input.ProductID == uuid.Nil {
		return Movement{}, ErrProductRequired
	}
	now := s.now().UTC()
	code := fmt.Sprintf("%s-%s", typ, input.RefID)
	if input.RefID == "" {
		code = fmt.Sprintf("%s-%d", typ, now.UnixNano())
	}

	key := fmt.Sprintf("%s:%s", code, input.ProductID)
	insertedKey := false
	if s.idempotency != nil && input.RefID != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		newQty := balance.Qty + qtyChange
		if newQty < 0 {
			return ErrNegativeStock
		}
		balance.Qty = newQty
		if err := tx.UpdateBalance(ctx, balance); err != nil {
			return err
		}
		mv = Movement{
			Code:         code,
			Type:         typ,
			ProductID:    input.ProductID,
			QtyChange:    qtyChange,
			BalanceAfter: newQty,
			RefModule:    input.RefModule,
			RefID:        input.RefID,
			Note:         input.Note,
			PostedAt:     now,
		}
		id, err := tx.InsertMovement(ctx, mv)
		if err != nil {
			return err
		}
		mv.ID = id
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("inventory:%s", typ),
			Entity:   "product_stock",
			EntityID: input.ProductID.String(),
			Meta: map[string]any{
				"qty":        qtyChange,
				"balance":    mv.BalanceAfter,
				"ref_module": input.RefModule,
				"ref_id":     input.RefID,
			},
			At: now,
		})
	}
	return mv, nil
}
