// Package middleware holds the fiber middleware shared by the HTTP API.
package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/escrow/pkg/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is where the verified token is stored in fiber locals.
const ContextKey = "user"

// ErrMissingSubject is returned when a verified token carries no subject.
var ErrMissingSubject = errors.New("token has no subject")

// JwtProtected rejects requests without a valid HS256 bearer token.
func JwtProtected(cfg *config.Jwt) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.Secret)},
		ContextKey:   ContextKey,
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	status, title := fiber.StatusUnauthorized, "Invalid or expired JWT"
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		status, title = fiber.StatusBadRequest, "Missing or malformed JWT"
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(fiber.Map{
		"type":     "about:blank",
		"title":    title,
		"status":   status,
		"detail":   err.Error(),
		"instance": c.OriginalURL(),
	})
}

// CurrentUserID returns the subject of the token verified by JwtProtected.
func CurrentUserID(c *fiber.Ctx) (string, error) {
	token, ok := c.Locals(ContextKey).(*jwt.Token)
	if !ok {
		return "", fmt.Errorf("missing user context")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", ErrMissingSubject
	}
	return sub, nil
}

// GenerateToken signs a token whose subject is userID.
func GenerateToken(cfg *config.Jwt, userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
