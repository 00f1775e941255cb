// agentctl runs maintenance operations against the AgentSphere database
// without starting the API server.
package main

import (
	"fmt"
	"os"

	"github.com/agentsphere/agentsphere-api/config"
	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "agentctl",
	Short:         "Maintenance commands for the AgentSphere API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), defaults to LOG_LEVEL")

	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newRevokeTokensCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime is the shared state every command opens
type runtime struct {
	env    *config.EnvironmentVariable
	logger *zap.Logger
	store  *database.GORMStore
	repo   *database.Repository
}

func openRuntime() (*runtime, error) {
	if err := config.LoadENV(); err != nil {
		return nil, err
	}
	env, err := config.Get()
	if err != nil {
		return nil, err
	}

	level := env.LOG_LEVEL
	if logLevel != "" {
		level = logLevel
	}
	logger, err := utils.NewLogger(env.GO_ENV, level)
	if err != nil {
		return nil, err
	}

	store, err := database.StartGORM(env, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		env:    env,
		logger: logger,
		store:  store,
		repo:   database.NewRepository(store.GetDB(), env.ENCRYPTION_SECRET),
	}, nil
}

func (rt *runtime) Close() {
	rt.store.Close()
	_ = rt.logger.Sync()
}
