// Package notify subscribes to escrow events: it tells buyers, sellers and
// operators what happened and dispatches seller payouts after release.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/amirasaad/escrow/pkg/provider/payment"
)

// Config holds the notification settings.
type Config struct {
	Currency    string
	OperatorIDs []string
}

// Notifier fans events out to the presentation adapter.
type Notifier struct {
	presenter presentation.Adapter
	payouts   payment.Payouts
	cfg       Config
	logger    *slog.Logger
}

// New creates a notifier. payouts may be nil when the provider cannot pay
// out; released trades are then logged for manual transfer.
func New(presenter presentation.Adapter, payouts payment.Payouts, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		presenter: presenter,
		payouts:   payouts,
		cfg:       cfg,
		logger:    logger.With("service", "notify"),
	}
}

// Register subscribes every handler to bus. Each handler runs at most once
// per event id.
func (n *Notifier) Register(bus eventbus.Bus, tracker *eventbus.IdempotencyTracker) {
	if tracker == nil {
		tracker = eventbus.NewIdempotencyTracker()
	}
	handlers := []struct {
		name      string
		eventType string
		fn        eventbus.HandlerFunc
	}{
		{"notify-paid", events.TypeTradePaid, n.onTradePaid},
		{"notify-flagged", events.TypeTradeFlagged, n.onTradeFlagged},
		{"notify-released", events.TypeTradeReleased, n.onTradeReleased},
		{"payout-dispatcher", events.TypeTradeReleased, n.dispatchPayout},
		{"notify-refunded", events.TypeTradeRefunded, n.onTradeRefunded},
		{"notify-init-failed", events.TypePaymentInitFailed, n.onPaymentInitFailed},
		{"notify-unknown-reference", events.TypeUnknownReferenceReported, n.onUnknownReference},
		{"notify-closed-trade-payment", events.TypePaymentOnClosedTrade, n.onPaymentOnClosedTrade},
	}
	for _, h := range handlers {
		key := func(e events.Event) string { return h.name + ":" + eventbus.ByEventID(e) }
		bus.Register(h.eventType, eventbus.WithIdempotency(h.fn, tracker, key, h.name, n.logger))
	}
}

func (n *Notifier) amount(minor int64) string {
	return presentation.FormatAmount(minor, n.cfg.Currency)
}

// notifyAll sends message to every user and joins the failures.
func (n *Notifier) notifyAll(ctx context.Context, message string, userIDs ...string) error {
	var errs []error
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := n.presenter.Notify(ctx, id, message); err != nil {
			n.logger.Error("failed to notify user", "user_id", id, "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) onTradePaid(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.TradePaid)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	buyerMsg := fmt.Sprintf("✅ Payment of %s received and held in escrow 🔒 (ref %s). The seller will now send your USDT.",
		n.amount(evt.AmountPaid), evt.PaymentReference)
	sellerMsg := fmt.Sprintf("💰 Buyer paid %s into escrow (ref %s). Send the USDT", n.amount(evt.AmountPaid), evt.PaymentReference)
	if evt.BuyerWallet != "" {
		sellerMsg += " to " + evt.BuyerWallet
	}
	sellerMsg += ", then use /release to receive your payout."
	if evt.Flagged {
		sellerMsg = fmt.Sprintf("💰 Buyer paid %s (ref %s) but the amount differs from the trade. An operator will review it before release.",
			n.amount(evt.AmountPaid), evt.PaymentReference)
	}
	return errors.Join(
		n.notifyAll(ctx, buyerMsg, evt.BuyerID),
		n.notifyAll(ctx, sellerMsg, evt.SellerID),
	)
}

func (n *Notifier) onTradeFlagged(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.TradeFlagged)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	msg := fmt.Sprintf("⚠️ Trade %s flagged for manual review: %s", evt.PaymentReference, evt.Reason)
	return n.notifyAll(ctx, msg, n.cfg.OperatorIDs...)
}

func (n *Notifier) onTradeReleased(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.TradeReleased)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	return errors.Join(
		n.notifyAll(ctx, fmt.Sprintf("✅ Released! You get %s (fee: %s).", n.amount(evt.Payout), n.amount(evt.Fee)), evt.SellerID),
		n.notifyAll(ctx, "Funds released to seller. Check your USDT! 💸", evt.BuyerID),
	)
}

func (n *Notifier) dispatchPayout(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.TradeReleased)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	log := n.logger.With("trade_id", evt.TradeID, "seller_id", evt.SellerID, "payout", evt.Payout)
	if n.payouts == nil {
		log.Warn("provider has no payout capability, transfer manually", "destination", evt.PayoutAddress)
		return nil
	}
	resp, err := n.payouts.InitiatePayout(ctx, &payment.InitiatePayoutParams{
		TradeID:     evt.TradeID,
		SellerID:    evt.SellerID,
		Reference:   evt.PaymentReference,
		Amount:      evt.Payout,
		Currency:    n.cfg.Currency,
		Destination: evt.PayoutAddress,
		Description: "escrow release " + evt.PaymentReference,
	})
	if err != nil {
		log.Error("payout failed", "error", err)
		return fmt.Errorf("payout for trade %s: %w", evt.TradeID, err)
	}
	log.Info("💸 payout initiated", "payout_id", resp.PayoutID, "status", resp.Status)
	return nil
}

func (n *Notifier) onTradeRefunded(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.TradeRefunded)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	return errors.Join(
		n.notifyAll(ctx, fmt.Sprintf("↩️ Your payment of %s (ref %s) is being refunded.", n.amount(evt.Amount), evt.PaymentReference), evt.BuyerID),
		n.notifyAll(ctx, fmt.Sprintf("Trade %s was refunded to the buyer by an operator. Do not send USDT.", evt.PaymentReference), evt.SellerID),
	)
}

func (n *Notifier) onPaymentInitFailed(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.PaymentInitFailed)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	return n.notifyAll(ctx, "Payment init failed. Try again.", evt.BuyerID)
}

func (n *Notifier) onUnknownReference(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.UnknownReferenceReported)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	msg := fmt.Sprintf("⚠️ Payment of %s for unknown reference %s (provider event %s).",
		n.amount(evt.Amount), evt.PaymentReference, evt.ProviderEventID)
	return n.notifyAll(ctx, msg, n.cfg.OperatorIDs...)
}

func (n *Notifier) onPaymentOnClosedTrade(ctx context.Context, e events.Event) error {
	evt, ok := e.(*events.PaymentOnClosedTrade)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	msg := fmt.Sprintf("⚠️ Payment of %s received for trade %s in status %s. Refund manually.",
		n.amount(evt.AmountPaid), evt.PaymentReference, evt.Status)
	return n.notifyAll(ctx, msg, n.cfg.OperatorIDs...)
}
