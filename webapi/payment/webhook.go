// Package payment receives the payment gateway's notifications.
package payment

import (
	"errors"

	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/service/reconcile"
	"github.com/amirasaad/escrow/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// MaxBodyBytes bounds a notification body.
const MaxBodyBytes = 64 << 10

// Routes registers the unauthenticated webhook route. The gateway's
// signature is the only authentication.
func Routes(app *fiber.App, a *app.App) {
	app.Post("/api/v1/webhooks/payment", WebhookHandler(a.Reconcile, a.Deps.Gateway.SignatureHeader()))
}

// WebhookHandler verifies and applies one payment notification.
//
// It answers 401 only when the signature does not verify and 503 when the
// ledger could not be reached, so the gateway retries. Everything else,
// including duplicates, unknown references and bodies over MaxBodyBytes, is
// acknowledged with 200. Oversized bodies are logged for operator review and
// never parsed.
func WebhookHandler(h *reconcile.Handler, signatureHeader string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if len(body) > MaxBodyBytes {
			log.Warnw("Ignoring oversized payment notification",
				"bytes", len(body), "limit", MaxBodyBytes, "ip", c.IP())
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"outcome": reconcile.OutcomeIgnored,
				"reason":  "payload too large",
			})
		}
		// fiber reuses the request buffer once the handler returns.
		raw := make([]byte, len(body))
		copy(raw, body)

		res, err := h.HandleNotification(c.UserContext(), raw, c.Get(signatureHeader))
		switch {
		case errors.Is(err, trade.ErrAuthenticationFailed):
			return common.ProblemDetailsJSON(c, "Invalid signature", err)
		case res != nil && res.Outcome == reconcile.OutcomeFailed:
			return common.ProblemDetailsJSON(c, "Ledger unavailable", err, fiber.StatusServiceUnavailable)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"outcome":   res.Outcome,
			"reference": res.Reference,
		})
	}
}
