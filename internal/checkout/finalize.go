package checkout

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/events"
	"github.com/rng-salon/salon-pos/internal/inventory"
	"github.com/rng-salon/salon-pos/internal/orders"
	"github.com/rng-salon/salon-pos/internal/shared"
	"github.com/rng-salon/salon-pos/jobs"
)

const (
	idempotencyModule = "pos"
	idempotencyPrefix = "pos:finalize:"
)

// Compensation steps, in the order they run.
const (
	stepRestock          = "restock"
	stepVoidOrder        = "void_order"
	stepCreditMembership = "credit_membership"
	stepReleaseKey       = "release_key"
)

// FinalizeResult is returned once an order has been persisted.
type FinalizeResult struct {
	Order   orders.Order `json:"order"`
	Receipt Receipt      `json:"receipt"`
	Totals  OrderTotals  `json:"totals"`
}

// Finalize settles the session: it validates the allocation, debits the
// membership wallet, persists the order and takes products off the shelf.
// The three writes succeed or are undone together. idempotencyKey may be
// empty, in which case a fingerprint of the session is used.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, idempotencyKey string) (FinalizeResult, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return FinalizeResult{}, err
	}
	if err := s.checkFinalizable(sess); err != nil {
		s.outcome("rejected")
		return FinalizeResult{}, err
	}

	now := s.now().UTC()
	totals := sess.Totals()
	payments, fees := settle(sess.Allocation, now)

	key := idempotencyKey
	if key == "" {
		key, err = fingerprint(sess)
		if err != nil {
			return FinalizeResult{}, fmt.Errorf("checkout: fingerprint: %w", err)
		}
	}
	key = idempotencyPrefix + key

	run := &finalizeRun{sess: sess, key: key}
	if s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.outcome("duplicate")
				return FinalizeResult{}, err
			}
			s.outcome("failed")
			return FinalizeResult{}, external("idempotency claim", err)
		}
		run.keyClaimed = true
	}

	if amount := sess.Allocation.Amount(MethodMembership); amount.IsPositive() {
		ref := referenceFor(payments, MethodMembership)
		if err := s.deps.Ledger.Debit(ctx, sess.Membership.ID, amount, ref); err != nil {
			return FinalizeResult{}, s.compensate(ctx, run, "membership_debit", err)
		}
		run.debited = amount
		run.debitRef = ref
	}

	order, err := s.deps.Orders.Create(ctx, buildDraft(sess, totals, payments, key))
	if err != nil {
		return FinalizeResult{}, s.compensate(ctx, run, "order_persist", err)
	}
	run.order = &order

	for _, li := range sess.Cart.Items {
		if li.Kind != catalog.KindProduct || s.deps.Stock == nil {
			continue
		}
		input := inventory.MovementInput{
			ProductID: li.CatalogID,
			Qty:       li.Quantity,
			RefModule: "pos",
			RefID:     order.Number,
			Note:      li.Name,
		}
		if _, err := s.deps.Stock.Decrement(ctx, input); err != nil {
			return FinalizeResult{}, s.compensate(ctx, run, "stock_decrement", err)
		}
		run.decremented = append(run.decremented, input)
	}

	receipt := Receipt{
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		TotalAmount:    totals.PayableTotal,
		Payments:       payments,
		ProcessingFees: fees,
		IssuedAt:       now,
	}
	s.afterFinalize(ctx, sess, order, totals, run)
	return FinalizeResult{Order: order, Receipt: receipt, Totals: totals}, nil
}

func (s *Service) checkFinalizable(sess *Session) error {
	if sess.Cart.Empty() {
		return ErrEmptyCart
	}
	terms := sess.Terms()
	if v := sess.Validate(); !v.IsValid {
		return &ReconciliationError{Remaining: v.Remaining}
	}
	for _, m := range Methods {
		if fe, ok := sess.Allocation.FieldErrors[m]; ok {
			return &fe
		}
	}
	if s.opts.EnforceLimits {
		if errs := s.opts.Limits.Check(sess.Allocation); len(errs) > 0 {
			return &errs[0]
		}
	}
	if amount := sess.Allocation.Amount(MethodMembership); amount.IsPositive() {
		if sess.Membership == nil || s.deps.Ledger == nil || amount.GreaterThan(terms.MembershipCap()) {
			return membershipCapError(terms)
		}
	}
	return nil
}

// finalizeRun tracks which writes went through so they can be undone.
type finalizeRun struct {
	sess        *Session
	key         string
	keyClaimed  bool
	debited     decimal.Decimal
	debitRef    string
	order       *orders.Order
	decremented []inventory.MovementInput
}

// compensate undoes the completed writes in reverse order. It runs on a
// context that survives cancellation of the request.
func (s *Service) compensate(ctx context.Context, run *finalizeRun, failedAt string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	logger := s.deps.Logger.With(
		slog.String("session_id", run.sess.ID.String()),
		slog.String("failed_at", failedAt),
	)
	logger.Error("finalize failed, compensating", slog.Any("error", cause))

	var steps []string
	step := func(name string, fn func() error) {
		steps = append(steps, name)
		if s.deps.Metrics != nil {
			s.deps.Metrics.Compensation(name)
		}
		if err := fn(); err != nil {
			logger.Error("compensation step failed", slog.String("step", name), slog.Any("error", err))
		}
	}

	for i := len(run.decremented) - 1; i >= 0; i-- {
		input := run.decremented[i]
		step(stepRestock, func() error {
			_, err := s.deps.Stock.Restock(ctx, input)
			return err
		})
	}
	if run.order != nil {
		step(stepVoidOrder, func() error {
			return s.deps.Orders.Void(ctx, run.order.ID, "finalize failed at "+failedAt)
		})
	}
	if run.debited.IsPositive() {
		step(stepCreditMembership, func() error {
			return s.deps.Ledger.Credit(ctx, run.sess.Membership.ID, run.debited, run.debitRef+"-REV")
		})
	}
	if run.keyClaimed {
		step(stepReleaseKey, func() error {
			return s.deps.Idempotency.Delete(ctx, run.key)
		})
	}

	evt := events.OrderCompensated{
		SessionID: run.sess.ID,
		FailedAt:  failedAt,
		Reason:    cause.Error(),
		Steps:     steps,
	}
	if run.order != nil {
		evt.OrderID = run.order.ID
	}
	if err := s.deps.Events.PublishOrderCompensated(ctx, evt); err != nil {
		logger.Warn("publish compensation event", slog.Any("error", err))
	}
	s.outcome("compensated")
	return external(failedAt, cause)
}

// afterFinalize runs the best-effort tail of a successful finalize. Failures
// here are logged and never undo the order.
func (s *Service) afterFinalize(ctx context.Context, sess *Session, order orders.Order, totals OrderTotals, run *finalizeRun) {
	logger := s.deps.Logger.With(
		slog.String("order_id", order.ID.String()),
		slog.String("order_number", order.Number),
	)
	methods := make([]string, 0, len(order.Payments))
	evtPayments := make([]events.Payment, 0, len(order.Payments))
	for _, p := range order.Payments {
		methods = append(methods, p.Method)
		evtPayments = append(evtPayments, events.Payment{Method: p.Method, Amount: p.Amount})
	}

	if s.deps.Audit != nil {
		err := s.deps.Audit.Record(ctx, shared.AuditLog{
			ActorID:  sess.StylistID,
			Action:   "pos:finalize",
			Entity:   "pos_order",
			EntityID: order.ID.String(),
			Meta: map[string]any{
				"number":        order.Number,
				"payable_total": totals.PayableTotal.StringFixed(2),
				"split":         sess.Allocation.Split,
				"methods":       methods,
			},
			At: order.CreatedAt,
		})
		if err != nil {
			logger.Warn("audit finalize", slog.Any("error", err))
		}
	}

	err := s.deps.Events.PublishOrderFinalized(ctx, events.OrderFinalized{
		OrderID:           order.ID,
		OrderNumber:       order.Number,
		ClientID:          sess.ClientID,
		StylistID:         sess.StylistID,
		PayableTotal:      totals.PayableTotal,
		TaxTotal:          totals.TaxTotal,
		MembershipSettled: run.debited,
		Payments:          evtPayments,
		FinalizedAt:       order.CreatedAt,
	})
	if err != nil {
		logger.Warn("publish finalize event", slog.Any("error", err))
	}

	if s.deps.Tasks != nil {
		products := make([]uuid.UUID, 0, len(run.decremented))
		for _, in := range run.decremented {
			products = append(products, in.ProductID)
		}
		err := s.deps.Tasks.EnqueueOrderFinalized(ctx, jobs.OrderFinalizedPayload{
			OrderID:           order.ID,
			OrderNumber:       order.Number,
			ClientID:          sess.ClientID,
			ProductIDs:        products,
			MembershipDebited: run.debited,
			FinalizedAt:       order.CreatedAt,
		})
		if err != nil {
			logger.Warn("enqueue finalize follow-up", slog.Any("error", err))
		}
	}

	s.outcome("success")
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObservePayable(totals.PayableTotal.InexactFloat64())
	}
	if err := s.deps.Sessions.Delete(ctx, sess.ID); err != nil {
		logger.Warn("delete finalized session", slog.Any("error", err))
	}
	logger.Info("order finalized",
		slog.String("payable_total", totals.PayableTotal.StringFixed(2)),
		slog.Bool("split", sess.Allocation.Split),
	)
}

func (s *Service) outcome(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.FinalizeOutcome(outcome)
	}
}

func buildDraft(sess *Session, totals OrderTotals, payments []SettlementLine, key string) orders.Draft {
	lines := make([]orders.Line, 0, len(sess.Cart.Items))
	for _, li := range sess.Cart.Items {
		applied := sess.taxApplied(li)
		lines = append(lines, orders.Line{
			ItemID:         li.ID,
			Kind:           string(li.Kind),
			CatalogID:      li.CatalogID,
			Name:           li.Name,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
			Discount:       li.clampedDiscount(),
			TaxRatePercent: li.TaxRatePercent,
			PayVia:         string(li.PayVia),
			NetSubtotal:    li.NetSubtotal(),
			TaxAmount:      li.TaxAmount(applied),
			LineTotal:      li.LineTotal(applied),
		})
	}
	out := make([]orders.Payment, 0, len(payments))
	for _, p := range payments {
		out = append(out, orders.Payment{
			Method:        string(p.Method),
			Amount:        p.Amount,
			ProcessingFee: p.ProcessingFee,
			Reference:     p.Reference,
		})
	}
	return orders.Draft{
		ClientID:          sess.ClientID,
		StylistID:         sess.StylistID,
		Lines:             lines,
		Payments:          out,
		Subtotal:          totals.Subtotal,
		TaxTotal:          totals.TaxTotal,
		GlobalDiscount:    totals.GlobalDiscount,
		MembershipSettled: sess.Allocation.Amount(MethodMembership),
		PayableTotal:      totals.PayableTotal,
		SplitPayment:      sess.Allocation.Split,
		IdempotencyKey:    key,
	}
}

func referenceFor(lines []SettlementLine, m Method) string {
	for _, l := range lines {
		if l.Method == m {
			return l.Reference
		}
	}
	return TransactionReference(m, time.Now())
}

type fingerprintInput struct {
	Session uuid.UUID                  `json:"session"`
	Items   []LineItem                 `json:"items"`
	Amounts map[Method]decimal.Decimal `json:"amounts"`
	Tax     TaxSettings                `json:"tax"`
	Global  decimal.Decimal            `json:"global"`
}

// fingerprint hashes what would be charged, so a double submit of the same
// cart and allocation maps to the same key.
func fingerprint(sess *Session) (string, error) {
	raw, err := json.Marshal(fingerprintInput{
		Session: sess.ID,
		Items:   sess.Cart.Items,
		Amounts: sess.Allocation.Amounts,
		Tax:     sess.Tax,
		Global:  sess.GlobalDiscount,
	})
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:16]), nil
}
