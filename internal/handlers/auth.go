package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kindcoach/kindcoach/internal/auth"
)

// AuthHandler serves login and logout.
type AuthHandler struct {
	manager *auth.Manager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(manager *auth.Manager) *AuthHandler {
	return &AuthHandler{manager: manager}
}

// Login checks the credentials and issues a session token, returned in the
// body and as a session cookie.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Request body must carry username and password",
			"code":  "ERR_INVALID_BODY",
		})
	}

	token, err := h.manager.Login(body.Username, body.Password)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{
			"error": "Invalid credentials",
			"code":  "ERR_INVALID_CREDENTIALS",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     "session",
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  time.Now().Add(auth.DefaultSessionTimeout),
	})
	return c.JSON(fiber.Map{
		"token":    token,
		"username": body.Username,
	})
}

// Logout invalidates the current session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.manager.Logout(auth.TokenFromRequest(c))
	c.ClearCookie("session")
	return c.JSON(fiber.Map{"logged_out": true})
}
