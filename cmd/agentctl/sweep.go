package main

import (
	"context"
	"time"

	"github.com/agentsphere/agentsphere-api/services/cron"
	"github.com/agentsphere/agentsphere-api/services/summary"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var idle time.Duration

	cmd := &cobra.Command{
		Use:   "sweep-sessions",
		Short: "Close idle sessions and summarize them",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if idle <= 0 {
				idle = rt.env.SESSION_IDLE_TIMEOUT
			}

			queue := tasks.NewQueue(rt.env.TASK_WORKERS, rt.logger.Named("tasks"))
			tasks.RegisterConversationTasks(queue, summary.NewGenerator(rt.repo, rt.logger.Named("summary")), rt.repo, rt.logger)

			manager := cron.NewCronManager(rt.store.GetDB(), rt.repo, queue, idle, rt.logger)
			manager.SweepIdleSessions()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			return queue.Shutdown(ctx)
		},
	}

	cmd.Flags().DurationVar(&idle, "idle", 0, "close sessions idle for longer than this, defaults to SESSION_IDLE_TIMEOUT")
	return cmd
}
