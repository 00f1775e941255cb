package tasks

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Task names
const (
	GenerateChatSummary            = "generate_chat_summary"
	DeleteAgentsInOrganization     = "delete_agents_in_organization"
	DeleteLLMsInOrganization       = "delete_llms_in_organization"
	DeleteMCPServersInOrganization = "delete_mcp_servers_in_organization"
	DeleteChatsInOrganization      = "delete_chats_in_organization"
)

type SummaryGenerator interface {
	GenerateChatSummary(sessionID string) *string
}

// OrganizationCleaner removes an organization's resources
type OrganizationCleaner interface {
	DeleteAgentsInOrganization(ctx context.Context, orgID uint) (int64, error)
	DeleteLLMsInOrganization(ctx context.Context, orgID uint) (int64, error)
	DeleteMCPServersInOrganization(ctx context.Context, orgID uint) (int64, error)
	DeleteChatsInOrganization(ctx context.Context, orgID uint) (int64, error)
}

// RegisterConversationTasks wires the summary and cleanup tasks onto q
func RegisterConversationTasks(q *Queue, summaries SummaryGenerator, cleaner OrganizationCleaner, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	q.Register(GenerateChatSummary, func(_ context.Context, args ...string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s expects a session id", GenerateChatSummary)
		}
		if summaries.GenerateChatSummary(args[0]) == nil {
			logger.Debug("No summary produced", zap.String("session_id", args[0]))
		}
		return nil
	})

	cleanups := map[string]func(context.Context, uint) (int64, error){
		DeleteAgentsInOrganization:     cleaner.DeleteAgentsInOrganization,
		DeleteLLMsInOrganization:       cleaner.DeleteLLMsInOrganization,
		DeleteMCPServersInOrganization: cleaner.DeleteMCPServersInOrganization,
		DeleteChatsInOrganization:      cleaner.DeleteChatsInOrganization,
	}
	for name, fn := range cleanups {
		q.Register(name, func(ctx context.Context, args ...string) error {
			if len(args) != 1 {
				return fmt.Errorf("%s expects an organization id", name)
			}
			orgID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%s: invalid organization id %q", name, args[0])
			}
			n, err := fn(ctx, uint(orgID))
			if err != nil {
				return err
			}
			logger.Info("Organization cleanup finished", zap.String("task", name), zap.Uint64("organization_id", orgID), zap.Int64("deleted", n))
			return nil
		})
	}
}
