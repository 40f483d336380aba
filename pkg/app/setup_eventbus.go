package app

import (
	"context"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/eventbus"
)

// setupEventBus registers all event handlers with the event bus.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	tracker := eventbus.NewIdempotencyTracker()

	a.Notifier.Register(bus, tracker)
	a.setupAuditHandlers(bus)
}

// setupAuditHandlers logs the lifecycle events no other handler consumes.
func (a *App) setupAuditHandlers(bus eventbus.Bus) {
	logger := a.Deps.Logger.With("handler", "audit")
	bus.Register(events.TypeTradeOpened, func(ctx context.Context, e events.Event) error {
		evt, ok := e.(*events.TradeOpened)
		if !ok {
			return nil
		}
		logger.InfoContext(ctx, "📒 trade opened",
			"trade_id", evt.TradeID,
			"reference", evt.PaymentReference,
			"buyer_id", evt.BuyerID,
			"seller_id", evt.SellerID,
			"amount", evt.Amount,
		)
		return nil
	})
}
