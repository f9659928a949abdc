package http

import "github.com/gofiber/fiber/v3"

// SubscriptionStatus is the externally visible state of one node subscription.
type SubscriptionStatus struct {
	Node           string `json:"node"`
	State          string `json:"state"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type StatusSource interface {
	Subscriptions() []SubscriptionStatus
}

// Subscriptions lists every configured node with its subscription state.
func Subscriptions(src StatusSource) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(src.Subscriptions())
	}
}

// Ready answers 503 until every subscription has an active stream.
func Ready(src StatusSource, activeState string) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		statuses := src.Subscriptions()
		for _, s := range statuses {
			if s.State != activeState {
				return ctx.Status(fiber.StatusServiceUnavailable).JSON(statuses)
			}
		}
		return ctx.Status(fiber.StatusOK).JSON(statuses)
	}
}
