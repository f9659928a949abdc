package infra

import (
	"github.com/gofiber/fiber/v3"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/http"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
)

func InitRoutes(server *fiber.App, src http.StatusSource) {
	server.Get("/health", http.Health)
	server.Get("/ready", http.Ready(src, usecase.StateActive.String()))
	server.Get("/subscriptions", http.Subscriptions(src))
}
