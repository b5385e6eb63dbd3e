package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fio-analyzer/server/pkg/api/middleware"
)

// AuthHandlers exchanges authenticated credentials for bearer tokens.
type AuthHandlers struct {
	auth *middleware.Authenticator
}

// NewAuthHandlers creates the auth handlers.
func NewAuthHandlers(auth *middleware.Authenticator) *AuthHandlers {
	return &AuthHandlers{auth: auth}
}

// Token mints a JWT for the already-authenticated caller. Streaming
// clients use it to reconnect without resending Basic credentials.
func (h *AuthHandlers) Token(c *fiber.Ctx) error {
	username := middleware.GetUsername(c)
	role := middleware.GetRole(c)

	token, expiresAt, err := h.auth.MintToken(username, role)
	if err != nil {
		log.Printf("[Auth] Token mint for %s failed: %v", username, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create token")
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"token_type": "Bearer",
		"username":   username,
		"role":       role,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
