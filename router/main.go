package router

import (
	"time"

	"github.com/agentsphere/agentsphere-api/config"
	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/handlers"
	organization_handlers "github.com/agentsphere/agentsphere-api/handlers/organization"
	session_handlers "github.com/agentsphere/agentsphere-api/handlers/session"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/orchestrator"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils"
	"github.com/agentsphere/agentsphere-api/utils/auth"
	"github.com/agentsphere/agentsphere-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Dependencies are the long lived services the routes are built from
type Dependencies struct {
	Env     *config.EnvironmentVariable
	Store   database.Storage
	Repo    *database.Repository
	Service *orchestrator.Service
	Groups  broadcast.Group
	Tasks   *tasks.Queue
	Logger  *zap.Logger
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	logger := utils.OrNop(deps.Logger)
	env := deps.Env

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: env.JWT_SECRET,
		Expiry: 24 * time.Hour,
		Issuer: env.JWT_ISSUER,
	})
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, deps.Store.GetDB())

	sessionHandler := session_handlers.NewSessionHandler(deps.Repo, deps.Service, deps.Tasks, deps.Groups, logger)
	cleanupHandler := organization_handlers.NewCleanupHandler(deps.Tasks, logger)

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    env.ALLOWED_ORIGINS,
		RateLimitRequests: 100,
		RateLimitWindow:   1 * time.Minute,
		RequestLogging:    !env.IsProduction(),
	})

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, deps.Store))

	// Conversation socket. The session id in the path is the credential.
	app.Get("/ws/conversation/session/:session_id/", sessionHandler.UpgradeConversation(), sessionHandler.Conversation())

	// API v1 group
	api := app.Group("/api/v1", authMiddleware.Required())

	api.Post("/auth/logout", authMiddleware.Logout)

	// Sessions
	api.Post("/sessions", sessionHandler.CreateSession)
	api.Post("/sessions/:id/messages", sessionHandler.SendMessage)
	api.Post("/sessions/:id/close", sessionHandler.CloseSession)

	// Chats
	api.Get("/chats/:type/:id/summary", sessionHandler.GetSummary)

	// Organizations
	api.Delete("/organizations/:id/:resource", cleanupHandler.DeleteResources)
}
