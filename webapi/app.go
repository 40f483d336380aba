// Package webapi assembles the escrow HTTP API.
package webapi

import (
	"time"

	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/webapi/chat"
	"github.com/amirasaad/escrow/webapi/common"
	"github.com/amirasaad/escrow/webapi/payment"
	"github.com/amirasaad/escrow/webapi/seller"
	"github.com/amirasaad/escrow/webapi/trade"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func NewApp(a *app.App) *fiber.App {
	cfg := a.Config
	readTimeout := 10 * time.Second
	if cfg.Server != nil && cfg.Server.ReadTimeout > 0 {
		readTimeout = cfg.Server.ReadTimeout
	}
	app := fiber.New(fiber.Config{
		ReadTimeout: readTimeout,
		BodyLimit:   payment.MaxBodyBytes * 16,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Default to 500 if status code cannot be determined
			status := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
			return common.ProblemDetailsJSON(c, "Internal Server Error", nil, err.Error(), status)
		},
	})

	maxRequests, window := 100, time.Minute
	if cfg.RateLimit != nil {
		maxRequests, window = cfg.RateLimit.MaxRequests, cfg.RateLimit.Window
	}
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		// The gateway must always be able to deliver notifications.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/webhooks/payment"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(c, "Too Many Requests", nil, "Rate limit exceeded", fiber.StatusTooManyRequests)
		},
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Escrow is working! 🔒")
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "provider": a.Deps.Gateway.Name()})
	})

	payment.Routes(app, a)
	trade.Routes(app, a, cfg)
	seller.Routes(app, a, cfg)
	chat.Routes(app, a, cfg)

	return app
}
