// Package reconcile applies inbound payment notifications to trades.
//
// Gateways redeliver and reorder notifications. Each successful charge moves
// its trade to paid at most once: deliveries racing in one process share a
// single attempt, and across processes the store's compare-and-update picks
// one winner. Every loser re-reads the trade and reports a duplicate.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Outcome classifies how a notification was handled.
type Outcome string

const (
	// OutcomeApplied means this notification moved the trade to paid.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the trade was already paid or later.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the notification was authentic but not a successful charge.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected means the notification was refused (bad signature,
	// unknown reference, or a payment for a closed trade).
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the store could not be reached; the sender should retry.
	OutcomeFailed Outcome = "failed"
)

// Result reports what happened to one notification.
type Result struct {
	Outcome   Outcome
	TradeID   uuid.UUID
	Reference string
	Status    trade.Status
	Flagged   bool
	Reason    string
}

// Acked reports whether the notification was accepted, including duplicates
// and ignored kinds.
func (r *Result) Acked() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeDuplicate || r.Outcome == OutcomeIgnored
}

// Config holds the reconciliation rules.
type Config struct {
	// PaymentTolerance is the largest |paid - amount| accepted without a flag.
	PaymentTolerance int64
	// Attempts bounds how often a lost compare-and-update is retried.
	Attempts int
}

// Handler reconciles payment notifications.
type Handler struct {
	registry *tradesvc.Registry
	gateway  payment.Gateway
	bus      eventbus.Bus
	cfg      Config
	logger   *slog.Logger
	inflight singleflight.Group
}

// New creates a reconciliation handler.
func New(
	registry *tradesvc.Registry,
	gateway payment.Gateway,
	bus eventbus.Bus,
	cfg Config,
	logger *slog.Logger,
) *Handler {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		gateway:  gateway,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With("handler", "reconcile", "gateway", gateway.Name()),
	}
}

// HandleNotification verifies raw against signature and applies it.
//
// raw must be the request body exactly as received. A signature failure
// returns ErrAuthenticationFailed before any store access. Unknown
// references return ErrUnknownReference and a payment for a trade whose
// link failed returns ErrInvalidTransition; neither mutates anything.
func (h *Handler) HandleNotification(ctx context.Context, raw []byte, signature string) (*Result, error) {
	if !h.gateway.VerifySignature(raw, signature) {
		h.logger.Warn("🚫 notification signature rejected", "bytes", len(raw))
		return &Result{Outcome: OutcomeRejected, Reason: "invalid signature"},
			trade.NewError(trade.ErrAuthenticationFailed, uuid.Nil, "invalid signature")
	}

	evt, err := h.gateway.ParseEvent(raw)
	if err != nil {
		h.logger.Warn("ignoring undecodable notification", "error", err)
		return &Result{Outcome: OutcomeIgnored, Reason: "undecodable payload"}, nil
	}
	log := h.logger.With("event", evt.RawKind, "reference", evt.Reference, "provider_event_id", evt.ProviderEventID)
	if evt.Kind != payment.EventChargeSucceeded {
		log.Info("ignoring notification kind")
		return &Result{Outcome: OutcomeIgnored, Reference: evt.Reference, Reason: "not a successful charge"}, nil
	}
	if evt.Reference == "" {
		log.Warn("ignoring successful charge without reference")
		return &Result{Outcome: OutcomeIgnored, Reason: "missing reference"}, nil
	}

	v, err, shared := h.inflight.Do(evt.Reference, func() (any, error) {
		return h.reconcile(context.WithoutCancel(ctx), evt, log)
	})
	if shared {
		log.Debug("notification collapsed with a concurrent delivery")
	}
	res := *v.(*Result)
	return &res, err
}

func (h *Handler) reconcile(ctx context.Context, evt *payment.Event, log *slog.Logger) (*Result, error) {
	for attempt := 1; attempt <= h.cfg.Attempts; attempt++ {
		t, err := h.registry.GetByReference(ctx, evt.Reference)
		if errors.Is(err, trade.ErrUnknownReference) {
			log.Warn("⚠️ payment for unknown reference, needs operator review", "amount", evt.Amount)
			h.emit(ctx, events.NewUnknownReferenceReported(evt.Reference, evt.Amount, evt.ProviderEventID, h.registry.Now()))
			return &Result{Outcome: OutcomeRejected, Reference: evt.Reference, Reason: "unknown reference"}, err
		}
		if err != nil {
			log.Error("failed to load trade", "error", err)
			return &Result{Outcome: OutcomeFailed, Reference: evt.Reference, Reason: "store unavailable"}, err
		}

		res := &Result{TradeID: t.ID, Reference: t.PaymentReference, Status: t.Status, Flagged: t.Flagged}
		switch {
		case t.Status.IsPaidOrLater():
			log.Info("duplicate payment notification", "trade_id", t.ID, "status", t.Status)
			res.Outcome = OutcomeDuplicate
			return res, nil

		case t.Status == trade.StatusFailedPaymentInit:
			log.Error("payment received for trade whose payment init failed, needs operator review",
				"trade_id", t.ID, "amount_paid", evt.Amount)
			h.emit(ctx, events.NewPaymentOnClosedTrade(t, evt.Amount, h.registry.Now()))
			res.Outcome = OutcomeRejected
			res.Reason = "payment for closed trade"
			return res, trade.NewError(trade.ErrInvalidTransition, t.ID,
				fmt.Sprintf("%s from %s", trade.EventPaymentConfirmed, t.Status))
		}

		conf := confirmation(t, evt.Amount, h.cfg.PaymentTolerance)
		applied, err := h.registry.ConfirmPayment(ctx, t.ID, conf)
		if err != nil {
			log.Error("failed to record payment", "trade_id", t.ID, "error", err)
			res.Outcome = OutcomeFailed
			res.Reason = "store unavailable"
			return res, err
		}
		if !applied {
			log.Debug("lost payment update, re-reading trade", "trade_id", t.ID, "attempt", attempt)
			continue
		}

		t.Status = trade.StatusPaid
		t.AmountPaid = conf.AmountPaid
		t.Flagged = conf.Flagged
		t.FlagReason = conf.FlagReason
		res.Outcome = OutcomeApplied
		res.Status = trade.StatusPaid
		res.Flagged = conf.Flagged

		log.Info("💰 payment confirmed", "trade_id", t.ID, "amount_paid", conf.AmountPaid, "flagged", conf.Flagged)
		h.emit(ctx, events.NewTradePaid(t, h.registry.Now()))
		if conf.Flagged {
			log.Warn("payment amount mismatch, trade flagged for manual review",
				"trade_id", t.ID, "amount", t.Amount, "amount_paid", conf.AmountPaid)
			h.emit(ctx, events.NewTradeFlagged(t, h.registry.Now()))
		}
		return res, nil
	}
	return &Result{Outcome: OutcomeFailed, Reference: evt.Reference, Reason: "too many concurrent updates"},
		fmt.Errorf("reconcile %s: gave up after %d attempts", evt.Reference, h.cfg.Attempts)
}

// confirmation flags payments that differ from the trade amount by more
// than tolerance. The trade still moves to paid.
func confirmation(t *trade.Trade, paid, tolerance int64) tradesvc.Confirmation {
	c := tradesvc.Confirmation{AmountPaid: paid}
	diff := paid - t.Amount
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		c.Flagged = true
		c.FlagReason = fmt.Sprintf("amount paid %d differs from trade amount %d by more than %d", paid, t.Amount, tolerance)
	}
	return c
}

func (h *Handler) emit(ctx context.Context, evt events.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Emit(ctx, evt); err != nil {
		h.logger.Error("failed to emit event", "type", evt.Type(), "error", err)
	}
}
