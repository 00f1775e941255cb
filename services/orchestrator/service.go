package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/memory"
	"github.com/agentsphere/agentsphere-api/services/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionInactive = errors.New("session is not active")
	ErrEmptyMessage    = errors.New("message content is required")
)

// Repository is the storage the conversation core depends on
type Repository interface {
	AgentSource
	SessionLLMSource
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetChatInfo(ctx context.Context, sessionID uuid.UUID) (*model.ChatInfo, error)
	SaveMessage(ctx context.Context, session *model.Session, content string, sender model.SenderKind, userID, agentID *uint) (*model.Message, error)
	GetAgent(ctx context.Context, id uint) (*model.Agent, error)
	GetAgentsForGroupChat(ctx context.Context, groupChatID uint) ([]model.Agent, error)
	GetPreviousMessages(ctx context.Context, session *model.Session, limit int) ([]model.Message, error)
}

// Publisher pushes payloads to a broadcast group
type Publisher interface {
	Publish(ctx context.Context, group string, payload []byte) error
}

// Service routes user messages through agent teams
type Service struct {
	repo        Repository
	publisher   Publisher
	assembler   *Assembler
	newResolver func() *tools.Resolver
	configure   func(*Factory)
	logger      *zap.Logger
}

type ServiceOption func(*Service)

// WithResolverFactory replaces how each run's tool resolver is created
func WithResolverFactory(fn func() *tools.Resolver) ServiceOption {
	return func(s *Service) { s.newResolver = fn }
}

// WithFactoryHook lets callers adjust each run's participant factory
func WithFactoryHook(fn func(*Factory)) ServiceOption {
	return func(s *Service) { s.configure = fn }
}

// WithAssembler replaces the team assembler
func WithAssembler(a *Assembler) ServiceOption {
	return func(s *Service) { s.assembler = a }
}

func NewService(repo Repository, publisher Publisher, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:      repo,
		publisher: publisher,
		assembler: NewAssembler(repo, logger),
		logger:    logger,
	}
	s.newResolver = func() *tools.Resolver {
		return tools.NewResolver(logger, tools.WithToolListingHook(s.recordToolListing))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleUserMessage persists the user's message, runs the chat's team and
// returns the agent replies. Each reply is persisted and broadcast to the
// session group as it is produced, then handed to onMessage.
func (s *Service) HandleUserMessage(ctx context.Context, sessionID uuid.UUID, userID uint, content string, onMessage func(Response)) ([]Response, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionInactive
	}

	info, err := s.repo.GetChatInfo(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}

	previous, err := s.repo.GetPreviousMessages(ctx, session, memory.PreviousMessageLimit)
	if err != nil {
		s.logger.Warn("Failed to load previous messages", zap.String("session_id", sessionID.String()), zap.Error(err))
		previous = nil
	}

	uid := userID
	if _, err := s.repo.SaveMessage(ctx, session, content, model.SenderUser, &uid, nil); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	s.publish(ctx, session, broadcast.Envelope{Content: content, Source: UserProxyName})

	agents, err := s.chatAgents(ctx, info)
	if err != nil {
		return nil, err
	}

	resolver := s.newResolver()
	defer resolver.Close()

	factory := NewFactory(s.repo, resolver, s.logger)
	if s.configure != nil {
		s.configure(factory)
	}

	history := memory.History(info.Summary(), toPreviousMessages(previous))
	participants := factory.BuildParticipants(ctx, agents, history)

	deliver := func(r Response) {
		aid := r.AgentID
		if _, err := s.repo.SaveMessage(ctx, session, r.Content, model.SenderAgent, nil, &aid); err != nil {
			s.logger.Error("Failed to save agent message", zap.Uint("agent_id", r.AgentID), zap.Error(err))
		}
		s.publish(ctx, session, broadcast.Envelope{Content: r.Content, Source: r.Source})
		if onMessage != nil {
			onMessage(r)
		}
	}

	team, fallback := s.assembler.BuildTeam(ctx, info.Type, agents, participants, session)
	if len(fallback) > 0 {
		for _, r := range fallback {
			deliver(r)
		}
		return fallback, nil
	}
	if team == nil && info.Type != model.ChatTypeSingle && info.Type != model.ChatTypeGroup {
		return nil, nil
	}

	return Run(ctx, team, content, agents, deliver), nil
}

func (s *Service) chatAgents(ctx context.Context, info *model.ChatInfo) ([]model.Agent, error) {
	switch {
	case info.SingleChat != nil:
		agent, err := s.repo.GetAgent(ctx, info.SingleChat.AgentID)
		if err != nil {
			return nil, fmt.Errorf("load chat agent: %w", err)
		}
		return []model.Agent{*agent}, nil
	case info.GroupChat != nil:
		agents, err := s.repo.GetAgentsForGroupChat(ctx, info.GroupChat.ID)
		if err != nil {
			return nil, fmt.Errorf("load group agents: %w", err)
		}
		return agents, nil
	}
	return nil, nil
}

func (s *Service) publish(ctx context.Context, session *model.Session, env broadcast.Envelope) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, session.GroupName(), env.Bytes()); err != nil {
		s.logger.Warn("Failed to broadcast message", zap.String("group", session.GroupName()), zap.Error(err))
	}
}

// toolListingRecorder is implemented by stores that remember what each tool server offered
type toolListingRecorder interface {
	UpdateMCPServerTools(ctx context.Context, serverID uint, tools []string) error
}

func (s *Service) recordToolListing(serverID uint, names []string) {
	rec, ok := s.repo.(toolListingRecorder)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.UpdateMCPServerTools(ctx, serverID, names); err != nil {
		s.logger.Debug("Failed to record tool listing", zap.Uint("server_id", serverID), zap.Error(err))
	}
}

func toPreviousMessages(msgs []model.Message) []memory.PreviousMessage {
	out := make([]memory.PreviousMessage, 0, len(msgs))
	for _, m := range msgs {
		pm := memory.PreviousMessage{Sender: m.Sender, SenderName: m.SenderName(), Content: m.Content}
		if m.AgentID != nil {
			pm.AgentID = *m.AgentID
		}
		out = append(out, pm)
	}
	return out
}
