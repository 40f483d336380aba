// Package trade exposes the trade lifecycle over HTTP.
package trade

import (
	"strconv"

	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/middleware"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/amirasaad/escrow/pkg/service/matching"
	"github.com/amirasaad/escrow/pkg/service/release"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/amirasaad/escrow/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Routes registers HTTP routes for trades and the operator view.
func Routes(app *fiber.App, a *app.App, cfg *config.App) {
	protected := middleware.JwtProtected(cfg.Auth.Jwt)
	app.Post("/api/v1/trades", protected, CreateTrade(a.Matching))
	app.Get("/api/v1/trades/:id", protected, GetTrade(a.Registry, a.Release))
	app.Post("/api/v1/trades/:id/release", protected, ReleaseTrade(a.Release))
	app.Post("/api/v1/trades/:id/refund", protected, RefundTrade(a.Release))
	app.Get("/api/v1/admin/trades", protected, ListTrades(a.Registry, a.Release))
}

func userAndTrade(c *fiber.Ctx) (string, uuid.UUID, bool, error) {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return "", uuid.Nil, false, common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", uuid.Nil, false, common.ProblemDetailsJSON(c, "Invalid trade ID", nil, "trade id must be a valid UUID")
	}
	return userID, id, true, nil
}

// CreateTrade opens a trade for the authenticated buyer.
// @Summary Open a trade
// @Tags trades
// @Accept json
// @Produce json
// @Param request body CreateTradeRequest true "Trade request"
// @Success 201 {object} common.Response "Trade opened"
// @Failure 400 {object} common.ProblemDetails "Invalid amount"
// @Failure 409 {object} common.ProblemDetails "No seller available"
// @Failure 502 {object} common.ProblemDetails "Payment initialization failed"
// @Router /api/v1/trades [post]
// @Security Bearer
func CreateTrade(engine *matching.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[CreateTradeRequest](c)
		if input == nil {
			return err
		}
		buyerID, err := middleware.CurrentUserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		t, err := engine.RequestTrade(c.UserContext(), matching.RequestParams{
			BuyerID:     buyerID,
			AmountMinor: input.Amount,
			BuyerWallet: input.Wallet,
		})
		if err != nil {
			log.Errorf("Failed to open trade: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to open trade", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Trade opened", toDTO(t))
	}
}

// GetTrade returns a trade to one of its parties or an operator.
// @Summary Get a trade
// @Tags trades
// @Produce json
// @Param id path string true "Trade ID"
// @Success 200 {object} common.Response "Trade fetched"
// @Failure 403 {object} common.ProblemDetails "Not a party"
// @Failure 404 {object} common.ProblemDetails "Trade not found"
// @Router /api/v1/trades/{id} [get]
// @Security Bearer
func GetTrade(registry *tradesvc.Registry, controller *release.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, ok, err := userAndTrade(c)
		if !ok {
			return err
		}
		t, err := registry.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get trade", err)
		}
		if !t.IsParty(userID) && !controller.IsOperator(userID) {
			return common.ProblemDetailsJSON(c, "Forbidden",
				trade.NewError(trade.ErrUnauthorized, t.ID, "not a party to this trade"))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Trade fetched", toDTO(t))
	}
}

// ReleaseTrade releases a paid trade.
// @Summary Release a trade
// @Tags trades
// @Produce json
// @Param id path string true "Trade ID"
// @Success 200 {object} common.Response "Trade released"
// @Failure 403 {object} common.ProblemDetails "Not the seller or an operator"
// @Failure 409 {object} common.ProblemDetails "Trade not ready"
// @Router /api/v1/trades/{id}/release [post]
// @Security Bearer
func ReleaseTrade(controller *release.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, ok, err := userAndTrade(c)
		if !ok {
			return err
		}
		res, err := controller.Release(c.UserContext(), id, userID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to release trade", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Trade released", ReleaseResponse{
			TradeID: res.TradeID,
			Fee:     res.Fee,
			Payout:  res.Payout,
			Status:  res.Status.String(),
		})
	}
}

// RefundTrade refunds a paid trade. Operators only.
// @Summary Refund a trade
// @Tags admin
// @Produce json
// @Param id path string true "Trade ID"
// @Success 200 {object} common.Response "Trade refunded"
// @Failure 403 {object} common.ProblemDetails "Not an operator"
// @Failure 409 {object} common.ProblemDetails "Trade not ready"
// @Router /api/v1/trades/{id}/refund [post]
// @Security Bearer
func RefundTrade(controller *release.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, ok, err := userAndTrade(c)
		if !ok {
			return err
		}
		t, err := controller.Refund(c.UserContext(), id, userID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to refund trade", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Trade refunded", toDTO(t))
	}
}

// ListTrades lists live trades for operators, by default the paid ones
// awaiting release.
// @Summary List trades
// @Tags admin
// @Produce json
// @Param status query string false "Status filter (default paid)"
// @Param flagged query bool false "Flagged filter"
// @Success 200 {object} common.Response "Trades fetched"
// @Failure 403 {object} common.ProblemDetails "Not an operator"
// @Router /api/v1/admin/trades [get]
// @Security Bearer
func ListTrades(registry *tradesvc.Registry, controller *release.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.CurrentUserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		if !controller.IsOperator(userID) {
			return common.ProblemDetailsJSON(c, "Forbidden",
				trade.NewError(trade.ErrUnauthorized, uuid.Nil, "operators only"))
		}

		filter := repository.TradeFilter{Archived: trade.Ptr(false)}
		status := trade.StatusPaid
		if raw := c.Query("status"); raw != "" {
			if status, err = trade.ParseStatus(raw); err != nil {
				return common.ProblemDetailsJSON(c, "Invalid status", nil, err.Error())
			}
		}
		filter.Statuses = []trade.Status{status}
		if raw := c.Query("flagged"); raw != "" {
			flagged, err := strconv.ParseBool(raw)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid flagged filter", nil, err.Error())
			}
			filter.Flagged = &flagged
		}

		trades, err := registry.List(c.UserContext(), filter)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list trades", err)
		}
		dtos := make([]*DTO, 0, len(trades))
		for _, t := range trades {
			dtos = append(dtos, toDTO(t))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Trades fetched", dtos)
	}
}
