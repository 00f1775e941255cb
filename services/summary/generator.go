// Package summary keeps a rolling Markdown summary on every chat.
package summary

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxTokens bounds the summary response
	MaxTokens = 32768
	// DefaultTimeout bounds one GenerateChatSummary call
	DefaultTimeout = 5 * time.Minute
)

// Store is the storage the generator reads from and writes to
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetChatInfo(ctx context.Context, sessionID uuid.UUID) (*model.ChatInfo, error)
	GetLLMDetailsByLLMID(ctx context.Context, llmID uint) (*model.LLMDetails, error)
	// ListChatMessages returns every message of a chat across all its sessions, oldest first
	ListChatMessages(ctx context.Context, chatType model.ChatType, chatID uint) ([]model.Message, error)
	// ListSessionMessages returns one session's messages, newest first
	ListSessionMessages(ctx context.Context, sessionID uuid.UUID) ([]model.Message, error)
	UpdateChatSummary(ctx context.Context, chatType model.ChatType, chatID uint, summary string) error
}

type Generator struct {
	store     Store
	newClient func(llm.ClientConfig) llm.Client
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Generator)

func WithClientConstructor(fn func(llm.ClientConfig) llm.Client) Option {
	return func(g *Generator) { g.newClient = fn }
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGenerator(store Store, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{store: store, newClient: llm.CreateClient, timeout: DefaultTimeout, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateChatSummary is the task entry point. It runs Generate under its own
// bounded context.
func (g *Generator) GenerateChatSummary(sessionID string) *string {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		g.logger.Warn("Invalid session id for summary", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	return g.Generate(ctx, id)
}

// Generate creates or updates the summary of the chat the session belongs to.
// It returns the stored summary afterwards, or nil when none could be made.
// Failures are logged and never returned.
func (g *Generator) Generate(ctx context.Context, sessionID uuid.UUID) (result *string) {
	log := g.logger.With(zap.String("session_id", sessionID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Summary generation panicked", zap.Any("panic", r))
			result = nil
		}
	}()

	session, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("Session not found for summary", zap.Error(err))
		return nil
	}
	if session.LLMID == nil {
		log.Debug("Session has no llm, skipping summary")
		return nil
	}

	details, err := g.store.GetLLMDetailsByLLMID(ctx, *session.LLMID)
	if err != nil || details == nil {
		log.Warn("Summary llm unavailable", zap.Error(err))
		return nil
	}

	info, err := g.store.GetChatInfo(ctx, sessionID)
	if err != nil {
		log.Warn("Chat not found for summary", zap.Error(err))
		return nil
	}
	existing := info.Summary()

	var prompt string
	if strings.TrimSpace(existing) == "" {
		messages, err := g.store.ListChatMessages(ctx, info.Type, info.ChatID())
		if err != nil {
			log.Warn("Failed to load chat messages", zap.Error(err))
			return nil
		}
		if len(messages) == 0 {
			return nil
		}
		prompt = CreatePrompt(Transcript(messages))
	} else {
		messages, err := g.store.ListSessionMessages(ctx, sessionID)
		if err != nil {
			log.Warn("Failed to load session messages", zap.Error(err))
			return &existing
		}
		if len(messages) == 0 {
			return &existing
		}
		slices.Reverse(messages)
		prompt = UpdatePrompt(existing, Transcript(messages))
	}

	fallback := func() *string {
		if existing == "" {
			return nil
		}
		return &existing
	}

	client := g.newClient(llm.ConfigFromDetails(*details))
	if client == nil {
		log.Warn("Could not create summary llm client")
		return fallback()
	}

	resp, err := client.Chat(ctx, llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: MaxTokens,
	})
	if err != nil {
		log.Warn("Summary model call failed", zap.Error(err))
		return fallback()
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		log.Warn("Summary model returned nothing")
		return fallback()
	}

	if err := g.store.UpdateChatSummary(ctx, info.Type, info.ChatID(), summary); err != nil {
		log.Error("Failed to store summary", zap.Error(err))
		return fallback()
	}

	log.Info("Chat summary updated", zap.String("chat_type", string(info.Type)), zap.Uint("chat_id", info.ChatID()))
	return &summary
}

// Transcript formats messages one per line as "<Kind> (<senderName>): <content>"
func Transcript(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", m.Sender.Label(), m.SenderName(), m.Content))
	}
	return strings.Join(lines, "\n")
}
