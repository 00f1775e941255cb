package main

import (
	"fmt"

	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/model"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	opts := database.DefaultSeedOptions()
	var apiType string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo organization with agents, an LLM and two chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.APIType = model.APIType(apiType)
			if !opts.APIType.Valid() {
				return fmt.Errorf("unknown api type %q", apiType)
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			seeder := database.NewSeeder(rt.store.GetDB(), rt.repo, rt.logger)
			res, err := seeder.SeedAll(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "organization: %d\n", res.OrganizationID)
			fmt.Fprintf(out, "user:         %d (%s)\n", res.UserID, opts.UserEmail)
			fmt.Fprintf(out, "llm:          %d\n", res.LLMID)
			fmt.Fprintf(out, "agents:       %v\n", res.AgentIDs)
			fmt.Fprintf(out, "single chat:  %d\n", res.SingleChatID)
			fmt.Fprintf(out, "group chat:   %d\n", res.GroupChatID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.OrganizationName, "org", opts.OrganizationName, "organization name")
	f.StringVar(&opts.UserEmail, "email", opts.UserEmail, "demo user email")
	f.StringVar(&opts.UserName, "name", opts.UserName, "demo user name")
	f.StringVar(&apiType, "api-type", string(opts.APIType), "LLM provider (openai, openai_compatible, anthropic, ollama)")
	f.StringVar(&opts.BaseURL, "base-url", opts.BaseURL, "LLM endpoint")
	f.StringVar(&opts.Model, "model", opts.Model, "model name")
	f.IntVar(&opts.MaxTokens, "max-tokens", opts.MaxTokens, "completion token limit")
	f.StringVar(&opts.APIKey, "api-key", "", "provider API key, stored encrypted")
	return cmd
}
