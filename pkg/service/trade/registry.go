// Package trade implements the Trade Registry: the only writer of trade
// records. Every write is one compare-and-update whose expected set comes
// from the lifecycle table, so concurrent callers race on the store and
// exactly one of them wins a transition.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
)

// Registry owns trade records.
type Registry struct {
	store   repository.TradeRepository
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistry creates a registry. Every store call is bounded by timeout
// when it is positive.
func NewRegistry(store repository.TradeRepository, timeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With("service", "trade-registry"),
	}
}

// WithClock replaces the time source. Used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now().UTC()
}

func (r *Registry) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Create stores a new trade in created.
func (r *Registry) Create(ctx context.Context, t *trade.Trade) error {
	if t.Amount <= 0 {
		return trade.NewError(trade.ErrInvalidAmount, t.ID, "amount must be positive")
	}
	if t.Status != trade.StatusCreated {
		return trade.NewError(trade.ErrInvalidTransition, t.ID, "new trades start in created")
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.CreateTrade(ctx, t); err != nil {
		return fmt.Errorf("create trade %s: %w", t.ID, err)
	}
	r.logger.Info("trade created",
		"trade_id", t.ID, "reference", t.PaymentReference,
		"buyer_id", t.BuyerID, "seller_id", t.SellerID, "amount", t.Amount)
	return nil
}

// Get returns a trade by id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*trade.Trade, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	t, err := r.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, trade.NewError(trade.ErrTradeNotFound, id, "")
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

// GetByReference returns the trade owning a payment reference. A reference
// with no trade fails with ErrUnknownReference.
func (r *Registry) GetByReference(ctx context.Context, reference string) (*trade.Trade, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	t, err := r.store.GetByReference(ctx, reference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, trade.NewError(trade.ErrUnknownReference, uuid.Nil, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade by reference %q: %w", reference, err)
	}
	return t, nil
}

// List returns trades matching filter.
func (r *Registry) List(ctx context.Context, filter repository.TradeFilter) ([]*trade.Trade, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	trades, err := r.store.ListTrades(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// apply fires e on the trade through a single compare-and-update and
// reports whether this call won the transition.
func (r *Registry) apply(ctx context.Context, id uuid.UUID, e trade.Event, patch trade.Patch) (bool, error) {
	target, ok := trade.Target(e)
	if !ok {
		return false, trade.NewError(trade.ErrInvalidTransition, id, "unknown event "+string(e))
	}
	patch.Status = &target
	ctx, cancel := r.bound(ctx)
	defer cancel()
	applied, err := r.store.CompareAndUpdate(ctx, id, trade.AllowedFrom(e), patch)
	if err != nil {
		return false, fmt.Errorf("%s trade %s: %w", e, id, err)
	}
	if applied {
		r.logger.Info("trade transitioned", "trade_id", id, "event", e, "status", target)
	}
	return applied, nil
}

// rejection builds the error returned when a transition lost or was never
// allowed, re-reading the trade to name its current status.
func (r *Registry) rejection(ctx context.Context, id uuid.UUID, e trade.Event) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, _, err := trade.Apply(current.Status, e); err != nil {
		return trade.NewError(trade.ErrInvalidTransition, id, fmt.Sprintf("%s from %s", e, current.Status))
	}
	return trade.NewError(trade.ErrInvalidTransition, id, fmt.Sprintf("%s lost a concurrent update", e))
}

// MarkAwaitingPayment records the issued payment link.
func (r *Registry) MarkAwaitingPayment(ctx context.Context, id uuid.UUID, payURL string) error {
	applied, err := r.apply(ctx, id, trade.EventPaymentLinkIssued, trade.Patch{PayURL: &payURL})
	if err != nil {
		return err
	}
	if !applied {
		return r.rejection(ctx, id, trade.EventPaymentLinkIssued)
	}
	return nil
}

// MarkPaymentInitFailed closes a trade whose payment link could not be issued.
func (r *Registry) MarkPaymentInitFailed(ctx context.Context, id uuid.UUID) error {
	applied, err := r.apply(ctx, id, trade.EventPaymentInitFailed, trade.Patch{})
	if err != nil {
		return err
	}
	if !applied {
		return r.rejection(ctx, id, trade.EventPaymentInitFailed)
	}
	return nil
}

// Confirmation is what the reconciliation handler records on payment.
type Confirmation struct {
	AmountPaid int64
	Flagged    bool
	FlagReason string
}

// ConfirmPayment moves a created or awaiting trade to paid. It reports
// false, without error, when another caller already moved the trade; the
// caller decides whether that is a duplicate by re-reading.
func (r *Registry) ConfirmPayment(ctx context.Context, id uuid.UUID, c Confirmation) (bool, error) {
	now := r.Now()
	patch := trade.Patch{
		AmountPaid: &c.AmountPaid,
		PaidAt:     &now,
	}
	if c.Flagged {
		patch.Flagged = trade.Ptr(true)
		patch.FlagReason = &c.FlagReason
	}
	return r.apply(ctx, id, trade.EventPaymentConfirmed, patch)
}

// Release moves a paid trade to released and records the settlement.
func (r *Registry) Release(ctx context.Context, id uuid.UUID, s trade.Settlement) (bool, error) {
	now := r.Now()
	return r.apply(ctx, id, trade.EventReleaseAuthorized, trade.Patch{
		Fee:        &s.Fee,
		Payout:     &s.Payout,
		ReleasedAt: &now,
	})
}

// Refund moves a paid trade to refunded.
func (r *Registry) Refund(ctx context.Context, id uuid.UUID) (bool, error) {
	now := r.Now()
	return r.apply(ctx, id, trade.EventRefundAuthorized, trade.Patch{RefundedAt: &now})
}

// Archive stamps ArchivedAt on terminal trades untouched for olderThan.
// Trades are never deleted. It returns how many trades were archived.
func (r *Registry) Archive(ctx context.Context, olderThan time.Duration) (int, error) {
	terminal := []trade.Status{trade.StatusReleased, trade.StatusFailedPaymentInit, trade.StatusRefunded}
	candidates, err := r.List(ctx, repository.TradeFilter{
		Statuses:      terminal,
		UpdatedBefore: r.Now().Add(-olderThan),
		Archived:      trade.Ptr(false),
	})
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, t := range candidates {
		now := r.Now()
		cctx, cancel := r.bound(ctx)
		ok, err := r.store.CompareAndUpdate(cctx, t.ID, []trade.Status{t.Status}, trade.Patch{ArchivedAt: &now})
		cancel()
		if err != nil {
			return archived, fmt.Errorf("archive trade %s: %w", t.ID, err)
		}
		if ok {
			archived++
		}
	}
	if archived > 0 {
		r.logger.Info("🗄️ trades archived", "count", archived)
	}
	return archived, nil
}
