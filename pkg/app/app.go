// Package app wires the escrow services together over their dependencies.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/amirasaad/escrow/pkg/service/chat"
	"github.com/amirasaad/escrow/pkg/service/matching"
	"github.com/amirasaad/escrow/pkg/service/notify"
	"github.com/amirasaad/escrow/pkg/service/reconcile"
	"github.com/amirasaad/escrow/pkg/service/release"
	"github.com/amirasaad/escrow/pkg/service/seller"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/amirasaad/escrow/pkg/session"
)

// Deps contains the infrastructure the services run on.
type Deps struct {
	Store     repository.Store
	Sessions  session.Store
	Gateway   payment.Gateway
	Payouts   payment.Payouts
	Presenter presentation.Adapter
	EventBus  eventbus.Bus
	Logger    *slog.Logger
	// Closers are released by App.Close in reverse order.
	Closers []io.Closer
}

type App struct {
	Deps      *Deps
	Config    *config.App
	Registry  *tradesvc.Registry
	Matching  *matching.Engine
	Reconcile *reconcile.Handler
	Release   *release.Controller
	Sellers   *seller.Service
	Chat      *chat.Service
	Notifier  *notify.Notifier
}

func New(deps *Deps, cfg *config.App) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	esc := cfg.Escrow
	rate, err := trade.NewFeeRate(esc.FeeBasisPoints)
	if err != nil {
		return nil, fmt.Errorf("invalid fee rate: %w", err)
	}

	app := &App{Deps: deps, Config: cfg}
	logger := deps.Logger
	app.Registry = tradesvc.NewRegistry(deps.Store, esc.StoreTimeout, logger)
	app.Matching = matching.New(deps.Store, app.Registry, deps.Gateway, deps.EventBus, matching.Config{
		MinAmount:      esc.MinAmount,
		Currency:       esc.Currency,
		CallbackURL:    esc.CallbackURL,
		StoreTimeout:   esc.StoreTimeout,
		GatewayTimeout: esc.GatewayTimeout,
	}, logger)
	app.Reconcile = reconcile.New(app.Registry, deps.Gateway, deps.EventBus, reconcile.Config{
		PaymentTolerance: esc.PaymentTolerance,
		Attempts:         esc.ReconcileAttempts,
	}, logger)
	app.Release = release.New(app.Registry, deps.EventBus, release.Config{
		FeeRate:     rate,
		OperatorIDs: esc.OperatorIDs,
	}, logger)
	app.Sellers = seller.New(deps.Store, esc.StoreTimeout, logger)
	app.Chat = chat.New(
		deps.Sessions,
		deps.Presenter,
		app.Matching,
		app.Sellers,
		app.Registry,
		app.Release,
		chat.Config{Currency: esc.Currency},
		logger,
	)
	app.Notifier = notify.New(deps.Presenter, deps.Payouts, notify.Config{
		Currency:    esc.Currency,
		OperatorIDs: esc.OperatorIDs,
	}, logger)
	app.setupEventBus()
	return app, nil
}

// Close releases every closer in Deps, returning the first error.
func (a *App) Close() error {
	var first error
	for i := len(a.Deps.Closers) - 1; i >= 0; i-- {
		if err := a.Deps.Closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
