package http

import "github.com/gofiber/fiber/v3"

// Health is the liveness probe. It does not look at node subscriptions;
// /ready does.
func Health(ctx fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "UP"})
}
