package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	if len(envFilePath) == 0 {
		logger.Debug("No environment file specified, trying default .env")
		if err := godotenv.Load(); err != nil {
			logger.Warn("No .env file found in current directory")
		}
		return loadFromEnv()
	}

	for _, path := range envFilePath {
		logger.Debug("Looking for environment file", "path", path)
		foundPath, err := FindEnvTest(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}

		logger.Info("Loading environment from file", "path", foundPath)
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		return loadFromEnv()
	}

	logger.Info("No valid environment files found, using default .env")
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found in current directory")
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"rate_limit_max_requests", cfg.RateLimit.MaxRequests,
		"rate_limit_window", cfg.RateLimit.Window,
		"db", maskValue(cfg.DB.Url),
		"redis", maskValue(cfg.Redis.URL),
		"auth_jwt_expiry", cfg.Auth.Jwt.Expiry,
		"payment_provider", cfg.PaymentProviders.Name,
		"paystack_secret_key", maskValue(cfg.PaymentProviders.Paystack.SecretKey),
		"stripe_api_key", maskValue(cfg.PaymentProviders.Stripe.ApiKey),
		"escrow_fee_bps", cfg.Escrow.FeeBasisPoints,
		"escrow_min_amount", cfg.Escrow.MinAmount,
		"escrow_operators", len(cfg.Escrow.OperatorIDs),
		"eventbus_driver", cfg.EventBus.Driver,
		"presenter_driver", cfg.Presenter.Driver,
	)
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (a *App) Validate() error {
	e := a.Escrow
	if e.MinAmount <= 0 {
		return fmt.Errorf("ESCROW_MIN_AMOUNT must be positive, got %d", e.MinAmount)
	}
	if e.FeeBasisPoints < 0 || e.FeeBasisPoints > 10000 {
		return fmt.Errorf("ESCROW_FEE_BASIS_POINTS must be in [0, 10000], got %d", e.FeeBasisPoints)
	}
	if e.PaymentTolerance < 0 {
		return fmt.Errorf("ESCROW_PAYMENT_TOLERANCE must not be negative, got %d", e.PaymentTolerance)
	}
	if e.ReconcileAttempts < 1 {
		return fmt.Errorf("ESCROW_RECONCILE_ATTEMPTS must be at least 1, got %d", e.ReconcileAttempts)
	}
	switch a.PaymentProviders.Name {
	case "paystack", "stripe", "mock":
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER_NAME %q", a.PaymentProviders.Name)
	}
	switch a.EventBus.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown EVENTBUS_DRIVER %q", a.EventBus.Driver)
	}
	switch a.Presenter.Driver {
	case "log", "kafka":
	default:
		return fmt.Errorf("unknown PRESENTER_DRIVER %q", a.Presenter.Driver)
	}
	return nil
}

func maskValue(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
