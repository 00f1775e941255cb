package handlers

import (
	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		return response.ServiceUnavailable(c, "Database unavailable")
	}
	return response.Success(c, fiber.Map{"status": "ok"})
}
