package main

import (
	"fmt"

	"github.com/agentsphere/agentsphere-api/services/summary"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <session-id>",
		Short: "Regenerate the chat summary from a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			generator := summary.NewGenerator(rt.repo, rt.logger.Named("summary"))
			text := generator.Generate(cmd.Context(), sessionID)
			if text == nil {
				return fmt.Errorf("no summary produced for session %s", sessionID)
			}
			fmt.Fprintln(cmd.OutOrStdout(), *text)
			return nil
		},
	}
}
