package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentsphere/agentsphere-api/api"
	"github.com/agentsphere/agentsphere-api/config"
	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/router"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/cron"
	"github.com/agentsphere/agentsphere-api/services/orchestrator"
	"github.com/agentsphere/agentsphere-api/services/summary"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils"
	"github.com/agentsphere/agentsphere-api/utils/cache"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func SetupAndRunServer() error {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	env, err := config.Get()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(env.GO_ENV, env.LOG_LEVEL)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if env.JWT_SECRET == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if env.ENCRYPTION_SECRET == "" {
		logger.Warn("ENCRYPTION_SECRET is not set, stored LLM API keys cannot be decrypted")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM(env, logger)
	if err != nil {
		logger.Error("Check whether Postgres is running", zap.String("host", env.DB_HOST), zap.String("port", env.DB_PORT))
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize database tables: %w", err)
	}

	sqlDB, err := store.GetDB().DB()
	if err != nil {
		return err
	}

	// Redis backs the broadcast group and task de-duplication when reachable
	redisCache, err := cache.NewRedisCache(env.REDIS_URL)
	if err != nil {
		logger.Warn("Failed to connect to Redis, continuing without it", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	groups, err := broadcast.New(env.BROADCAST_BACKEND, broadcast.Dependencies{
		Redis:       redisCache,
		PostgresDSN: env.PostgresDSN(),
		DB:          sqlDB,
	}, logger.Named("broadcast"))
	if err != nil {
		return err
	}
	defer groups.Close()

	repo := database.NewRepository(store.GetDB(), env.ENCRYPTION_SECRET)

	// Background tasks
	var queueOpts []tasks.Option
	if redisCache != nil {
		queueOpts = append(queueOpts, tasks.WithDeduplication(redisCache, tasks.DefaultDedupeTTL))
	}
	queue := tasks.NewQueue(env.TASK_WORKERS, logger.Named("tasks"), queueOpts...)
	generator := summary.NewGenerator(repo, logger.Named("summary"))
	tasks.RegisterConversationTasks(queue, generator, repo, logger.Named("tasks"))

	// Cron jobs
	var cronManager *cron.CronManager
	if env.CRON_ENABLED {
		cronManager = cron.NewCronManager(store.GetDB(), repo, queue, env.SESSION_IDLE_TIMEOUT, logger)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			logger.Warn("Failed to start cron jobs", zap.Error(err))
			cronManager = nil
		}
	}

	service := orchestrator.NewService(repo, groups, logger.Named("orchestrator"))

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", env.PORT), logger)
	router.SetupRoutes(server.GetEngine(), router.Dependencies{
		Env:     env,
		Store:   store,
		Repo:    repo,
		Service: service,
		Groups:  groups,
		Tasks:   queue,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not complete", zap.Error(err))
	}
	if cronManager != nil {
		cronManager.Stop()
	}
	// Pending summaries finish before the store closes
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Task queue did not drain", zap.Error(err))
	}
	return nil
}
