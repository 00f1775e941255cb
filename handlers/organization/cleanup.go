// Package organization exposes bulk cleanup of an organization's resources.
package organization

import (
	"errors"
	"strconv"

	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils/middleware"
	"github.com/agentsphere/agentsphere-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// cleanupTasks maps the :resource path segment to its task
var cleanupTasks = map[string]string{
	"agents":      tasks.DeleteAgentsInOrganization,
	"llms":        tasks.DeleteLLMsInOrganization,
	"mcp-servers": tasks.DeleteMCPServersInOrganization,
	"chats":       tasks.DeleteChatsInOrganization,
}

// Enqueuer schedules background tasks
type Enqueuer interface {
	Enqueue(name string, args ...string) error
}

type CleanupHandler struct {
	tasks  Enqueuer
	logger *zap.Logger
}

func NewCleanupHandler(taskQueue Enqueuer, logger *zap.Logger) *CleanupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupHandler{tasks: taskQueue, logger: logger.Named("organization")}
}

// DeleteResources handles DELETE /api/v1/organizations/:id/:resource
// The deletion runs on the task queue; members may only clean up their own organization.
func (h *CleanupHandler) DeleteResources(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	orgID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid organization ID")
	}
	if uint(orgID) != user.OrganizationID {
		return response.Forbidden(c, "Not a member of this organization")
	}

	resource := c.Params("resource")
	task, ok := cleanupTasks[resource]
	if !ok {
		return response.NotFound(c, "Unknown resource")
	}

	if err := h.tasks.Enqueue(task, strconv.FormatUint(orgID, 10)); err != nil {
		if errors.Is(err, tasks.ErrQueueFull) || errors.Is(err, tasks.ErrQueueClosed) {
			return response.ServiceUnavailable(c, "Cleanup queue is busy, try again later")
		}
		h.logger.Error("Failed to schedule cleanup", zap.String("task", task), zap.Uint64("organization_id", orgID), zap.Error(err))
		return response.InternalServerError(c, "Failed to schedule cleanup")
	}

	return response.Accepted(c, fiber.Map{
		"organization_id": orgID,
		"resource":        resource,
		"task":            task,
	})
}
