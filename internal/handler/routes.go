package handler

import (
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers the API routes. Everything under /api requires
// the shared-secret header; /health stays open for probes.
func SetupRoutes(app *fiber.App, h *EmailHandler, apiKey string) {
	app.Get("/health", h.Health)

	api := app.Group("/api", apiKeyAuth(apiKey))

	email := api.Group("/email")
	email.Post("/send", h.Send)
	email.Post("/check", h.Check)
	email.Get("/received", h.ListReceived)
	email.Get("/:id", h.Get)
	email.Post("/:id/processed", h.MarkProcessed)
	email.Delete("/:id", h.Delete)
	email.Get("/:id/attachment/:filename", h.DownloadAttachment)
}

// apiKeyAuth validates the X-API-Key header against the configured
// shared secret.
func apiKeyAuth(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing API key",
			})
		}
		if key != apiKey {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "invalid API key",
			})
		}
		return c.Next()
	}
}
