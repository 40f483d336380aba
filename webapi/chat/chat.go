// Package chat relays chat front-end input to the conversation service.
// Replies go out through the presentation adapter, not the HTTP response.
package chat

import (
	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/middleware"
	chatsvc "github.com/amirasaad/escrow/pkg/service/chat"
	"github.com/amirasaad/escrow/pkg/session"
	"github.com/amirasaad/escrow/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// StartRequest begins a conversation.
type StartRequest struct {
	Role string `json:"role" validate:"required,oneof=buyer seller"`
}

// MessageRequest is one line typed by the user.
type MessageRequest struct {
	Text string `json:"text" validate:"required,max=1024"`
}

// Routes registers HTTP routes for the chat relay.
func Routes(app *fiber.App, a *app.App, cfg *config.App) {
	protected := middleware.JwtProtected(cfg.Auth.Jwt)
	app.Post("/api/v1/chat/start", protected, Start(a.Chat))
	app.Post("/api/v1/chat/messages", protected, Message(a.Chat))
}

// Start begins a buyer or seller conversation.
// @Summary Start a conversation
// @Tags chat
// @Accept json
// @Param request body StartRequest true "Role"
// @Success 202 {object} common.Response "Accepted"
// @Router /api/v1/chat/start [post]
// @Security Bearer
func Start(svc *chatsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[StartRequest](c)
		if input == nil {
			return err
		}
		userID, err := middleware.CurrentUserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		if err := svc.Start(c.UserContext(), userID, session.Role(input.Role)); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to start conversation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusAccepted, "Accepted", nil)
	}
}

// Message handles one chat message or command.
// @Summary Send a chat message
// @Tags chat
// @Accept json
// @Param request body MessageRequest true "Message"
// @Success 202 {object} common.Response "Accepted"
// @Router /api/v1/chat/messages [post]
// @Security Bearer
func Message(svc *chatsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[MessageRequest](c)
		if input == nil {
			return err
		}
		userID, err := middleware.CurrentUserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		if err := svc.HandleText(c.UserContext(), userID, input.Text); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to handle message", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusAccepted, "Accepted", nil)
	}
}
