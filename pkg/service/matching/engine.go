// Package matching pairs a buy request with the earliest registered
// available seller and opens the trade.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/amirasaad/escrow/pkg/repository"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/google/uuid"
)

// Config holds the matching rules.
type Config struct {
	MinAmount      int64
	Currency       string
	CallbackURL    string
	StoreTimeout   time.Duration
	GatewayTimeout time.Duration
}

// RequestParams is a buyer's request to open a trade.
type RequestParams struct {
	BuyerID     string
	AmountMinor int64
	BuyerWallet string
}

// Engine opens trades.
type Engine struct {
	sellers  repository.SellerRepository
	registry *tradesvc.Registry
	gateway  payment.Gateway
	bus      eventbus.Bus
	cfg      Config
	logger   *slog.Logger
}

// New creates a matching engine.
func New(
	sellers repository.SellerRepository,
	registry *tradesvc.Registry,
	gateway payment.Gateway,
	bus eventbus.Bus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sellers:  sellers,
		registry: registry,
		gateway:  gateway,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With("service", "matching"),
	}
}

func (e *Engine) bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// RequestTrade claims a seller, opens a trade and requests its payment link.
//
// On success the trade carries the PayURL and is awaiting_payment, or stays
// created when the link could not be recorded. When the gateway cannot issue
// a link the trade ends in failed_payment_init, the seller is made available
// again, and ErrPaymentInitFailed is returned.
func (e *Engine) RequestTrade(ctx context.Context, p RequestParams) (*trade.Trade, error) {
	log := e.logger.With("buyer_id", p.BuyerID, "amount", p.AmountMinor)
	if p.AmountMinor < e.cfg.MinAmount {
		return nil, trade.NewError(trade.ErrInvalidAmount, uuid.Nil,
			fmt.Sprintf("minimum amount is %d", e.cfg.MinAmount))
	}

	tradeID := uuid.New()
	seller, err := e.claimSeller(ctx, tradeID)
	if err != nil {
		if errors.Is(err, trade.ErrNoSellerAvailable) {
			log.Info("no seller available")
		}
		return nil, err
	}
	log = log.With("seller_id", seller.SellerID)

	t := trade.New(p.BuyerID, seller, p.AmountMinor, p.BuyerWallet, e.registry.Now())
	t.ID = tradeID
	if err := e.registry.Create(ctx, t); err != nil {
		log.Error("failed to create trade, releasing seller", "error", err)
		e.releaseClaim(ctx, seller.SellerID, tradeID)
		return nil, err
	}
	log = log.With("trade_id", t.ID, "reference", t.PaymentReference)

	gctx, cancel := e.bound(ctx, e.cfg.GatewayTimeout)
	resp, err := e.gateway.InitiatePayment(gctx, &payment.InitiatePaymentParams{
		TradeID:     t.ID,
		BuyerID:     t.BuyerID,
		Amount:      t.Amount,
		Currency:    e.cfg.Currency,
		Reference:   t.PaymentReference,
		CallbackURL: e.cfg.CallbackURL,
	})
	cancel()
	if err == nil && (resp == nil || resp.PayURL == "") {
		err = errors.New("gateway returned no payment link")
	}
	if err != nil {
		log.Error("payment initialization failed", "gateway", e.gateway.Name(), "error", err)
		return nil, e.compensate(ctx, t, err)
	}

	// The link is live either way. A payment still confirms a created trade.
	if err := e.registry.MarkAwaitingPayment(ctx, t.ID, resp.PayURL); err != nil {
		log.Warn("payment link not recorded, trade stays created", "error", err)
	} else {
		t.Status = trade.StatusAwaitingPayment
	}
	t.PayURL = resp.PayURL
	log.Info("✅ trade opened", "status", t.Status)

	e.emit(ctx, events.NewTradeOpened(t, e.registry.Now()))
	return t, nil
}

// claimSeller walks the available sellers in registration order and claims
// the first one for tradeID.
func (e *Engine) claimSeller(ctx context.Context, tradeID uuid.UUID) (*trade.Seller, error) {
	lctx, cancel := e.bound(ctx, e.cfg.StoreTimeout)
	candidates, err := e.sellers.ListAvailableSellers(lctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list available sellers: %w", err)
	}
	for _, s := range candidates {
		cctx, cancel := e.bound(ctx, e.cfg.StoreTimeout)
		claimed, err := e.sellers.ClaimSeller(cctx, s.SellerID, tradeID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("claim seller %s: %w", s.SellerID, err)
		}
		if claimed {
			s.Available = false
			s.ClaimedTradeID = &tradeID
			return s, nil
		}
	}
	return nil, trade.ErrNoSellerAvailable
}

// compensate closes a trade whose payment link could not be issued and
// gives the seller back to the pool. It runs even if ctx was cancelled. A
// trade that cannot be closed keeps its seller claimed.
func (e *Engine) compensate(ctx context.Context, t *trade.Trade, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := e.registry.MarkPaymentInitFailed(ctx, t.ID); err != nil {
		e.logger.Error("failed to close trade after payment init failure", "trade_id", t.ID, "error", err)
	} else {
		t.Status = trade.StatusFailedPaymentInit
		e.restoreSeller(ctx, t.SellerID)
	}
	e.emit(ctx, events.NewPaymentInitFailed(t, cause.Error(), e.registry.Now()))
	return trade.NewError(trade.ErrPaymentInitFailed, t.ID, cause.Error())
}

// releaseClaim gives back a seller whose trade was never stored.
func (e *Engine) releaseClaim(ctx context.Context, sellerID string, tradeID uuid.UUID) {
	ctx, cancel := e.bound(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()
	released, err := e.sellers.ReleaseSellerClaim(ctx, sellerID, tradeID)
	if err != nil {
		e.logger.Error("failed to release seller claim", "seller_id", sellerID, "trade_id", tradeID, "error", err)
		return
	}
	if !released {
		e.logger.Warn("seller claim already released", "seller_id", sellerID, "trade_id", tradeID)
	}
}

// restoreSeller reopens a seller whose claim was cleared by closing its trade.
func (e *Engine) restoreSeller(ctx context.Context, sellerID string) {
	ctx, cancel := e.bound(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()
	restored, err := e.sellers.SetSellerAvailability(ctx, sellerID, false, true)
	if err != nil {
		e.logger.Error("failed to restore seller availability", "seller_id", sellerID, "error", err)
		return
	}
	if !restored {
		e.logger.Warn("seller availability already restored", "seller_id", sellerID)
	}
}

func (e *Engine) emit(ctx context.Context, evt events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Emit(ctx, evt); err != nil {
		e.logger.Error("failed to emit event", "type", evt.Type(), "error", err)
	}
}
