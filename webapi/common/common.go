// Package common holds the response helpers shared by the HTTP handlers.
package common

import (
	"context"
	"errors"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Kind is the escrow error kind, e.g. "not_ready".
	Kind   trade.Kind `json:"kind,omitempty"`
	Errors any        `json:"errors,omitempty"`
}

var validate = validator.New()

// ErrorToStatusCode maps escrow errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, trade.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, trade.ErrAuthenticationFailed):
		return fiber.StatusUnauthorized
	case errors.Is(err, trade.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, trade.ErrTradeNotFound),
		errors.Is(err, trade.ErrSellerNotFound),
		errors.Is(err, trade.ErrUnknownReference),
		errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, trade.ErrNoSellerAvailable),
		errors.Is(err, trade.ErrInvalidTransition),
		errors.Is(err, trade.ErrNotReady),
		errors.Is(err, trade.ErrSellerExists),
		errors.Is(err, trade.ErrSellerBusy):
		return fiber.StatusConflict
	case errors.Is(err, trade.ErrPaymentInitFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ProblemDetailsJSON writes an RFC 9457 problem. args may carry a string
// detail, an int status overriding the one derived from err, or any other
// value used as the errors field.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, args ...any) error {
	status := ErrorToStatusCode(err)
	if err == nil {
		status = fiber.StatusBadRequest
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		pd.Detail = err.Error()
		if kind := trade.KindOf(err); kind != trade.KindInternal {
			pd.Kind = kind
		}
	}
	for _, arg := range args {
		switch v := arg.(type) {
		case int:
			status = v
		case string:
			pd.Detail = v
		default:
			pd.Errors = v
		}
	}
	pd.Status = status
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "5")
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(pd)
}

// SuccessResponseJSON writes a Response envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// BindAndValidate parses the request body and validates it using go-playground/validator.
// It returns nil after writing a problem response when the body is invalid.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", nil, err.Error())
	}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return nil, ProblemDetailsJSON(c, "Validation failed", nil, "request failed validation", fields)
		}
		return nil, ProblemDetailsJSON(c, "Validation failed", nil, err.Error())
	}
	return &input, nil
}
