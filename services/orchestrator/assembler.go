package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
	"go.uber.org/zap"
)

const groupSetupError = "I encountered an error setting up the group chat: %v"

// SessionLLMSource resolves the session level model override
type SessionLLMSource interface {
	GetLLMDetailsByLLMID(ctx context.Context, llmID uint) (*model.LLMDetails, error)
}

// Assembler builds the turn-taking team for a chat
type Assembler struct {
	store       SessionLLMSource
	newClient   func(llm.ClientConfig) llm.Client
	termination func() Termination
	logger      *zap.Logger
}

func NewAssembler(store SessionLLMSource, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		store:       store,
		newClient:   llm.CreateClient,
		termination: DefaultTermination,
		logger:      logger,
	}
}

// WithClientConstructor replaces how the selector client is created
func (a *Assembler) WithClientConstructor(fn func(llm.ClientConfig) llm.Client) *Assembler {
	a.newClient = fn
	return a
}

// BuildTeam returns a round-robin team for single chats and a selector team for
// group chats. Group setup failures come back as a one-message fallback instead
// of an error, attributed to the chat's first agent even when none of the agents
// could be turned into a participant. Unknown chat types yield no team and no
// fallback.
func (a *Assembler) BuildTeam(ctx context.Context, chatType model.ChatType, agents []model.Agent, participants []Participant, session *model.Session) (Team, []Response) {
	switch chatType {
	case model.ChatTypeSingle:
		team, err := NewRoundRobinTeam(participants, a.termination(), a.logger)
		if err != nil {
			a.logger.Warn("Failed to build round robin team", zap.Error(err))
			return nil, nil
		}
		return team, nil

	case model.ChatTypeGroup:
		team, err := a.buildSelectorTeam(ctx, participants, session)
		if err != nil {
			a.logger.Error("Failed to set up group chat", zap.Error(err))
			return nil, groupFallback(agents, err)
		}
		return team, nil
	}

	return nil, nil
}

func (a *Assembler) buildSelectorTeam(ctx context.Context, participants []Participant, session *model.Session) (team *SelectorTeam, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("selector team setup panicked: %v", r)
		}
	}()

	if session == nil || session.LLMID == nil {
		return nil, errors.New("session has no llm configured for speaker selection")
	}

	details, err := a.store.GetLLMDetailsByLLMID(ctx, *session.LLMID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, errors.New("session llm not found")
	}

	client := a.newClient(llm.ConfigFromDetails(*details))
	if client == nil {
		return nil, errors.New("could not create selector llm client")
	}

	return NewSelectorTeam(client, participants, a.termination(), a.logger)
}

func groupFallback(agents []model.Agent, err error) []Response {
	if len(agents) == 0 {
		return nil
	}
	return []Response{{
		AgentID: agents[0].ID,
		Source:  "agent",
		Content: fmt.Sprintf(groupSetupError, err),
	}}
}
