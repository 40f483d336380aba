// Package initializer builds the application dependencies from configuration.
package initializer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/amirasaad/escrow/infra"
	"github.com/amirasaad/escrow/infra/cache"
	infraeventbus "github.com/amirasaad/escrow/infra/eventbus"
	"github.com/amirasaad/escrow/infra/presenter"
	"github.com/amirasaad/escrow/infra/provider/mockpayment"
	"github.com/amirasaad/escrow/infra/provider/paystack"
	"github.com/amirasaad/escrow/infra/provider/stripepayment"
	infrarepository "github.com/amirasaad/escrow/infra/repository"
	"github.com/amirasaad/escrow/infra/repository/memory"
	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/amirasaad/escrow/pkg/session"
	"github.com/redis/go-redis/v9"
)

// InitializeDependencies initializes all the application dependencies.
// Without DATABASE_URL the ledger lives in memory; without REDIS_URL the
// sessions do too.
func InitializeDependencies(cfg *config.App) (deps *app.Deps, err error) {
	deps = &app.Deps{}
	logger := setupLogger(cfg.Log)
	deps.Logger = logger
	defer func() {
		if err != nil {
			closeAll(deps.Closers, logger)
		}
	}()

	deps.Store, err = initStore(cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	if cfg.Redis.URL != "" {
		client, err = newRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Closers = append(deps.Closers, client)
	}

	deps.EventBus, err = initEventBus(cfg, client, deps, logger)
	if err != nil {
		return nil, err
	}
	deps.Sessions = initSessions(cfg, client, logger)

	deps.Gateway, deps.Payouts, err = initGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.Presenter, err = initPresenter(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	return deps, nil
}

func initStore(cfg *config.App, deps *app.Deps, logger *slog.Logger) (repository.Store, error) {
	if cfg.DB == nil || cfg.DB.Url == "" {
		logger.Warn("DATABASE_URL not set, using in-memory ledger; trades are lost on restart")
		return memory.New(), nil
	}
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	deps.Closers = append(deps.Closers, sqlDB)
	if err := infrarepository.MigrateUp(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return infrarepository.New(db), nil
}

func newRedisClient(cfg *config.Redis) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func initEventBus(
	cfg *config.App,
	client redis.UniversalClient,
	deps *app.Deps,
	logger *slog.Logger,
) (eventbus.Bus, error) {
	switch cfg.EventBus.Driver {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("EVENTBUS_DRIVER=redis requires REDIS_URL")
		}
		bus, err := infraeventbus.NewWithRedis(
			client,
			cfg.Redis.KeyPrefix+cfg.EventBus.Stream,
			cfg.EventBus.Group,
			events.Types,
			logger,
		)
		if err != nil {
			return nil, err
		}
		deps.Closers = append(deps.Closers, bus)
		logger.Info("Using Redis Streams event bus", "stream", cfg.EventBus.Stream, "group", cfg.EventBus.Group)
		return bus, nil
	case "memory", "":
		return infraeventbus.NewWithMemory(logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus driver %q", cfg.EventBus.Driver)
	}
}

func initSessions(cfg *config.App, client redis.UniversalClient, logger *slog.Logger) session.Store {
	if client == nil {
		logger.Warn("REDIS_URL not set, chat sessions are kept in memory")
		return cache.NewMemorySessionStore(cfg.Redis.SessionTTL)
	}
	return cache.NewRedisSessionStore(client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL, logger)
}

// initGateway returns the configured payment provider. Every provider can
// also pay out, so the same value serves both roles.
func initGateway(cfg *config.App, logger *slog.Logger) (payment.Gateway, payment.Payouts, error) {
	providers := cfg.PaymentProviders
	currency := cfg.Escrow.Currency
	switch providers.Name {
	case "paystack":
		if providers.Paystack == nil || providers.Paystack.SecretKey == "" {
			return nil, nil, fmt.Errorf("PAYMENT_PROVIDER_PAYSTACK_SECRET_KEY is required")
		}
		p := paystack.New(providers.Paystack, currency, logger)
		return p, p, nil
	case "stripe":
		if providers.Stripe == nil || providers.Stripe.ApiKey == "" || providers.Stripe.SigningSecret == "" {
			return nil, nil, fmt.Errorf("PAYMENT_PROVIDER_STRIPE_API_KEY and _SIGNING_SECRET are required")
		}
		p := stripepayment.New(providers.Stripe, currency, logger)
		return p, p, nil
	case "mock", "":
		mockCfg := providers.Mock
		if mockCfg == nil {
			mockCfg = &config.MockPayment{}
		}
		logger.Warn("Using mock payment provider; do not use in production")
		p := mockpayment.NewMockPaymentProvider(mockCfg, logger)
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown payment provider %q", providers.Name)
	}
}

func initPresenter(cfg *config.App, deps *app.Deps, logger *slog.Logger) (presentation.Adapter, error) {
	currency := cfg.Escrow.Currency
	switch cfg.Presenter.Driver {
	case "kafka":
		if len(cfg.Presenter.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("PRESENTER_KAFKA_BROKERS is required")
		}
		p := presenter.NewKafkaPresenter(
			presenter.NewKafkaWriter(cfg.Presenter.KafkaBrokers, cfg.Presenter.Topic),
			currency,
			logger,
		)
		deps.Closers = append(deps.Closers, p)
		return p, nil
	case "log", "":
		return presenter.NewLogPresenter(currency, logger), nil
	default:
		return nil, fmt.Errorf("unknown presenter driver %q", cfg.Presenter.Driver)
	}
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("failed to close dependency", "error", err)
		}
	}
}
