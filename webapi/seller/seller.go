// Package seller exposes seller registration and availability over HTTP.
package seller

import (
	"time"

	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/middleware"
	sellersvc "github.com/amirasaad/escrow/pkg/service/seller"
	"github.com/amirasaad/escrow/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// RegisterRequest registers the authenticated user as a seller.
type RegisterRequest struct {
	PayoutAddress string `json:"payout_address" validate:"required,max=256"`
}

// AvailabilityRequest opens or pauses matching for the seller.
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// PayoutAddressRequest changes where future payouts go.
type PayoutAddressRequest struct {
	PayoutAddress string `json:"payout_address" validate:"required,max=256"`
}

// DTO is the public view of a seller profile.
type DTO struct {
	SellerID      string    `json:"seller_id"`
	PayoutAddress string    `json:"payout_address"`
	Available     bool      `json:"available"`
	CreatedAt     time.Time `json:"created_at"`
}

func toDTO(s *trade.Seller) *DTO {
	return &DTO{SellerID: s.SellerID, PayoutAddress: s.PayoutAddress, Available: s.Available, CreatedAt: s.CreatedAt}
}

// Routes registers HTTP routes for sellers.
func Routes(app *fiber.App, a *app.App, cfg *config.App) {
	protected := middleware.JwtProtected(cfg.Auth.Jwt)
	app.Post("/api/v1/sellers", protected, Register(a.Sellers))
	app.Get("/api/v1/sellers/me", protected, Me(a.Sellers))
	app.Post("/api/v1/sellers/me/availability", protected, SetAvailability(a.Sellers))
	app.Put("/api/v1/sellers/me/payout-address", protected, UpdatePayoutAddress(a.Sellers))
}

func currentSeller(c *fiber.Ctx) (string, error) {
	id, err := middleware.CurrentUserID(c)
	if err != nil {
		return "", common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
	}
	return id, nil
}

// Register creates an available seller profile.
// @Summary Register as seller
// @Tags sellers
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Payout details"
// @Success 201 {object} common.Response "Seller registered"
// @Failure 409 {object} common.ProblemDetails "Already registered"
// @Router /api/v1/sellers [post]
// @Security Bearer
func Register(svc *sellersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[RegisterRequest](c)
		if input == nil {
			return err
		}
		sellerID, err := currentSeller(c)
		if sellerID == "" {
			return err
		}
		s, err := svc.Register(c.UserContext(), sellerID, input.PayoutAddress)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to register seller", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Seller registered", toDTO(s))
	}
}

// Me returns the authenticated seller's profile.
func Me(svc *sellersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sellerID, err := currentSeller(c)
		if sellerID == "" {
			return err
		}
		s, err := svc.Get(c.UserContext(), sellerID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get seller", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Seller fetched", toDTO(s))
	}
}

// SetAvailability reopens or pauses the seller. Reopening is refused with
// 409 while the seller holds an open trade.
// @Summary Set seller availability
// @Tags sellers
// @Accept json
// @Produce json
// @Param request body AvailabilityRequest true "Availability"
// @Success 200 {object} common.Response "Availability updated"
// @Failure 409 {object} common.ProblemDetails "Seller has an open trade"
// @Router /api/v1/sellers/me/availability [post]
// @Security Bearer
func SetAvailability(svc *sellersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[AvailabilityRequest](c)
		if input == nil {
			return err
		}
		sellerID, err := currentSeller(c)
		if sellerID == "" {
			return err
		}
		if err := svc.SetAvailability(c.UserContext(), sellerID, *input.Available); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update availability", err)
		}
		s, err := svc.Get(c.UserContext(), sellerID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get seller", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Availability updated", toDTO(s))
	}
}

// UpdatePayoutAddress changes the seller's payout address. Trades already
// matched keep the old one.
func UpdatePayoutAddress(svc *sellersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[PayoutAddressRequest](c)
		if input == nil {
			return err
		}
		sellerID, err := currentSeller(c)
		if sellerID == "" {
			return err
		}
		if err := svc.UpdatePayoutAddress(c.UserContext(), sellerID, input.PayoutAddress); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update payout address", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout address updated", nil)
	}
}
