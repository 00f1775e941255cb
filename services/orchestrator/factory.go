package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/agentsphere/agentsphere-api/services/memory"
	"github.com/agentsphere/agentsphere-api/services/tools"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const (
	defaultDescription = "An AI assistant"

	continuityInstructions = `

You are part of an ongoing conversation. Earlier messages, and possibly a summary of previous sessions, are included in your history. Stay consistent with what was already said, build on earlier points instead of repeating them, and keep track of the user's goals across turns.`

	toolInstructions = `

You have tools available. Use them whenever they help you give an accurate answer, and base your reply on what they return.`
)

var ErrSkipAgent = errors.New("agent skipped")

// AgentSource is the storage the factory reads agent configuration from
type AgentSource interface {
	GetLLMDetails(ctx context.Context, agentID uint) (*model.LLMDetails, error)
	GetMCPServers(ctx context.Context, agentID uint) ([]model.MCPServer, error)
}

// ToolResolver turns an agent's tool servers into callable adapters
type ToolResolver interface {
	Resolve(ctx context.Context, servers []model.MCPServer) []tools.Adapter
}

// Factory builds participants for one run
type Factory struct {
	store     AgentSource
	tools     ToolResolver
	newClient func(llm.ClientConfig) llm.Client
	logger    *zap.Logger
}

func NewFactory(store AgentSource, resolver ToolResolver, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{store: store, tools: resolver, newClient: llm.CreateClient, logger: logger}
}

// WithClientConstructor replaces how model clients are created
func (f *Factory) WithClientConstructor(fn func(llm.ClientConfig) llm.Client) *Factory {
	f.newClient = fn
	return f
}

// Slug is the participant name used for an agent display name
func Slug(name string) string {
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

func skip(agent model.Agent, format string, args ...any) error {
	return fmt.Errorf("%w: %s (%d): %s", ErrSkipAgent, agent.Name, agent.ID, fmt.Sprintf(format, args...))
}

// BuildParticipant combines an agent's persona, model client, memory and
// tools. Every failure comes back wrapped in ErrSkipAgent.
func (f *Factory) BuildParticipant(ctx context.Context, agent model.Agent, history iter.Seq[memory.PreviousMessage]) (Participant, error) {
	details, err := f.store.GetLLMDetails(ctx, agent.ID)
	if err != nil {
		return nil, skip(agent, "llm details: %v", err)
	}
	if details == nil {
		return nil, skip(agent, "no llm configured")
	}

	client := f.newClient(llm.ConfigFromDetails(*details))
	if client == nil {
		return nil, skip(agent, "could not create llm client")
	}

	_, window := memory.Build(agent.ID, history, func(pm memory.PreviousMessage, err error) {
		f.logger.Debug("Skipping history entry", zap.Uint("agent_id", agent.ID), zap.Error(err))
	})

	var adapters []tools.Adapter
	if f.tools != nil {
		servers, err := f.store.GetMCPServers(ctx, agent.ID)
		if err != nil {
			f.logger.Warn("Failed to load tool servers", zap.Uint("agent_id", agent.ID), zap.Error(err))
		} else if len(servers) > 0 {
			adapters = f.tools.Resolve(ctx, servers)
		}
	}

	name := Slug(agent.Name)
	if name == "" {
		return nil, skip(agent, "name %q has no usable characters", agent.Name)
	}

	description := agent.Description
	if strings.TrimSpace(description) == "" {
		description = defaultDescription
	}

	prompt := agent.SystemPrompt + continuityInstructions
	if len(adapters) > 0 {
		prompt += toolInstructions
	}

	byName := make(map[string]tools.Adapter, len(adapters))
	defs := make([]llm.ToolDefinition, 0, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
		defs = append(defs, tools.Definition(a))
	}

	return &AssistantAgent{
		agentID:      agent.ID,
		name:         name,
		description:  description,
		systemPrompt: prompt,
		client:       client,
		context:      window,
		tools:        byName,
		toolDefs:     defs,
		logger:       f.logger,
	}, nil
}

// BuildParticipants builds every usable agent, drops names a team would
// reject, and appends the user proxy last.
func (f *Factory) BuildParticipants(ctx context.Context, agents []model.Agent, history iter.Seq[memory.PreviousMessage]) []Participant {
	participants := make([]Participant, 0, len(agents)+1)
	for _, agent := range agents {
		p, err := f.BuildParticipant(ctx, agent, history)
		if err != nil {
			f.logger.Warn("Skipping agent", zap.Uint("agent_id", agent.ID), zap.Error(err))
			continue
		}
		participants = append(participants, p)
	}
	participants = append(participants, NewUserProxy())

	return AcceptParticipants(participants, func(p Participant, err error) {
		f.logger.Warn("Skipping agent", zap.Uint("agent_id", p.AgentID()), zap.Error(err))
	})
}
