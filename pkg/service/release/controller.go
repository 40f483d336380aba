// Package release authorizes paying out a paid trade to its seller, or
// refunding it to the buyer. It records the decision and emits the payout
// instruction; it never moves money itself.
package release

import (
	"context"
	"log/slog"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/eventbus"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/google/uuid"
)

// Reasons returned with ErrNotReady.
const (
	ReasonNotYetPaid      = "not yet paid"
	ReasonAlreadyReleased = "already released"
	ReasonAlreadyRefunded = "already refunded"
	ReasonInitFailed      = "payment initialization failed"
	ReasonFlagged         = "flagged for manual review"
)

// Result is the settlement of a released trade.
type Result struct {
	TradeID uuid.UUID
	Fee     int64
	Payout  int64
	Status  trade.Status
}

// Config holds the release rules.
type Config struct {
	FeeRate     trade.FeeRate
	OperatorIDs []string
}

// Controller releases and refunds trades.
type Controller struct {
	registry  *tradesvc.Registry
	bus       eventbus.Bus
	feeRate   trade.FeeRate
	operators map[string]struct{}
	logger    *slog.Logger
}

// New creates a release controller.
func New(registry *tradesvc.Registry, bus eventbus.Bus, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ops := make(map[string]struct{}, len(cfg.OperatorIDs))
	for _, id := range cfg.OperatorIDs {
		if id != "" {
			ops[id] = struct{}{}
		}
	}
	return &Controller{
		registry:  registry,
		bus:       bus,
		feeRate:   cfg.FeeRate,
		operators: ops,
		logger:    logger.With("service", "release"),
	}
}

// IsOperator reports whether userID may act as the escrow operator.
func (c *Controller) IsOperator(userID string) bool {
	_, ok := c.operators[userID]
	return ok
}

func notReadyReason(s trade.Status) string {
	switch s {
	case trade.StatusReleased:
		return ReasonAlreadyReleased
	case trade.StatusRefunded:
		return ReasonAlreadyRefunded
	case trade.StatusFailedPaymentInit:
		return ReasonInitFailed
	default:
		return ReasonNotYetPaid
	}
}

// Release pays out a paid trade. Only the trade's seller or an operator may
// release, and a flagged trade only by an operator.
func (c *Controller) Release(ctx context.Context, tradeID uuid.UUID, requesterID string) (*Result, error) {
	t, err := c.registry.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("trade_id", t.ID, "requester_id", requesterID)

	operator := c.IsOperator(requesterID)
	if requesterID == "" || (requesterID != t.SellerID && !operator) {
		log.Warn("release refused: requester is neither seller nor operator")
		return nil, trade.NewError(trade.ErrUnauthorized, t.ID, "only the seller or an operator may release")
	}
	if t.Status != trade.StatusPaid {
		return nil, trade.NewError(trade.ErrNotReady, t.ID, notReadyReason(t.Status))
	}
	if t.Flagged && !operator {
		return nil, trade.NewError(trade.ErrNotReady, t.ID, ReasonFlagged)
	}

	settlement := c.feeRate.Settle(t.Amount)
	applied, err := c.registry.Release(ctx, t.ID, settlement)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, c.lost(ctx, t.ID)
	}

	t.Status = trade.StatusReleased
	t.Fee = settlement.Fee
	t.Payout = settlement.Payout
	log.Info("🔓 trade released", "fee", settlement.Fee, "payout", settlement.Payout, "fee_rate", c.feeRate.String())
	c.emit(ctx, events.NewTradeReleased(t, requesterID, c.registry.Now()))

	return &Result{
		TradeID: t.ID,
		Fee:     settlement.Fee,
		Payout:  settlement.Payout,
		Status:  trade.StatusReleased,
	}, nil
}

// Refund returns a paid trade's fiat to the buyer. Operators only.
func (c *Controller) Refund(ctx context.Context, tradeID uuid.UUID, requesterID string) (*trade.Trade, error) {
	t, err := c.registry.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !c.IsOperator(requesterID) {
		c.logger.Warn("refund refused: requester is not an operator", "trade_id", t.ID, "requester_id", requesterID)
		return nil, trade.NewError(trade.ErrUnauthorized, t.ID, "only an operator may refund")
	}
	if t.Status != trade.StatusPaid {
		return nil, trade.NewError(trade.ErrNotReady, t.ID, notReadyReason(t.Status))
	}

	applied, err := c.registry.Refund(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, c.lost(ctx, t.ID)
	}
	t.Status = trade.StatusRefunded
	c.logger.Info("↩️ trade refunded", "trade_id", t.ID, "requester_id", requesterID)
	c.emit(ctx, events.NewTradeRefunded(t, requesterID, c.registry.Now()))
	return t, nil
}

// lost re-reads a trade whose paid transition another caller won.
func (c *Controller) lost(ctx context.Context, id uuid.UUID) error {
	current, err := c.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	return trade.NewError(trade.ErrNotReady, id, notReadyReason(current.Status))
}

func (c *Controller) emit(ctx context.Context, evt events.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Emit(ctx, evt); err != nil {
		c.logger.Error("failed to emit event", "type", evt.Type(), "error", err)
	}
}
