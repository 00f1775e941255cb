// Package session serves the HTTP and WebSocket surface of conversation sessions.
package session

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/orchestrator"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils/middleware"
	"github.com/agentsphere/agentsphere-api/utils/response"
	"github.com/agentsphere/agentsphere-api/utils/sse"
	"github.com/agentsphere/agentsphere-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTurnTimeout bounds one streamed conversation turn
const DefaultTurnTimeout = 5 * time.Minute

// Store is the session storage the handlers need
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	CreateSession(ctx context.Context, userID uint, chatType model.ChatType, chatID uint, llmID *uint) (*model.Session, error)
	DeactivateSession(ctx context.Context, id uuid.UUID) error
	GetChatInfo(ctx context.Context, sessionID uuid.UUID) (*model.ChatInfo, error)
	GetChat(ctx context.Context, chatType model.ChatType, chatID uint) (*model.ChatInfo, error)
}

// Conversation runs one user turn through the chat's agents
type Conversation interface {
	HandleUserMessage(ctx context.Context, sessionID uuid.UUID, userID uint, content string, onMessage func(orchestrator.Response)) ([]orchestrator.Response, error)
}

// Enqueuer schedules background tasks
type Enqueuer interface {
	Enqueue(name string, args ...string) error
}

// SessionHandler handles session lifecycle, messages and the live socket
type SessionHandler struct {
	store       Store
	service     Conversation
	tasks       Enqueuer
	groups      broadcast.Group
	validator   *validation.Validator
	turnTimeout time.Duration
	logger      *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store Store, service Conversation, taskQueue Enqueuer, groups broadcast.Group, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:       store,
		service:     service,
		tasks:       taskQueue,
		groups:      groups,
		validator:   validation.NewValidator(),
		turnTimeout: DefaultTurnTimeout,
		logger:      logger.Named("session"),
	}
}

// CreateSessionRequest represents the request to open a session on a chat
type CreateSessionRequest struct {
	ChatType string `json:"chat_type" validate:"required,chat_type"`
	ChatID   uint   `json:"chat_id" validate:"required,min=1"`
	LLMID    *uint  `json:"llm_id" validate:"omitempty,min=1"`
}

// SendMessageRequest represents a user message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=10000"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	session, err := h.store.CreateSession(c.UserContext(), user.ID, model.ChatType(req.ChatType), req.ChatID, req.LLMID)
	switch {
	case errors.Is(err, database.ErrActiveSessionExists):
		return response.Conflict(c, "Chat already has an active session")
	case errors.Is(err, database.ErrNotFound):
		return response.NotFound(c, "Chat not found")
	case err != nil:
		h.logger.Error("Failed to create session", zap.Uint("chat_id", req.ChatID), zap.Error(err))
		return response.InternalServerError(c, "Failed to create session")
	}

	return response.Created(c, session)
}

// SendMessage handles POST /api/v1/sessions/:id/messages
// Pass ?stream=true to receive each agent message as it is produced.
func (h *SessionHandler) SendMessage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	session, ok, err := h.ownedSession(c, user.ID)
	if !ok {
		return err
	}
	if !session.IsActive {
		return response.Conflict(c, "Session is closed")
	}

	if c.QueryBool("stream") {
		return h.streamMessage(c, session.ID, user.ID, req.Content)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.turnTimeout)
	defer cancel()

	replies, err := h.service.HandleUserMessage(ctx, session.ID, user.ID, req.Content, nil)
	if err != nil {
		return h.turnError(c, session.ID, err)
	}
	if replies == nil {
		replies = []orchestrator.Response{}
	}

	return response.Created(c, fiber.Map{"messages": replies})
}

func (h *SessionHandler) streamMessage(c *fiber.Ctx, sessionID uuid.UUID, userID uint, content string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	timeout := h.turnTimeout
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The fiber context is not valid once the handler has returned
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		replies, err := h.service.HandleUserMessage(ctx, sessionID, userID, content, func(r orchestrator.Response) {
			if err := sse.SendMessage(w, r); err != nil {
				h.logger.Debug("Stream client went away", zap.String("session_id", sessionID.String()), zap.Error(err))
			}
		})
		if err != nil {
			h.logger.Warn("Streamed turn failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			_ = sse.SendError(w, err)
			return
		}
		_ = sse.SendComplete(w, fiber.Map{"count": len(replies)})
	})

	return nil
}

func (h *SessionHandler) turnError(c *fiber.Ctx, sessionID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrSessionInactive):
		return response.Conflict(c, "Session is closed")
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, database.ErrNotFound):
		return response.NotFound(c, "Session not found")
	}
	h.logger.Error("Conversation turn failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	return response.InternalServerError(c, "Failed to process message")
}

// CloseSession handles POST /api/v1/sessions/:id/close
func (h *SessionHandler) CloseSession(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	session, ok, err := h.ownedSession(c, user.ID)
	if !ok {
		return err
	}

	if err := h.store.DeactivateSession(c.UserContext(), session.ID); err != nil {
		h.logger.Error("Failed to close session", zap.String("session_id", session.ID.String()), zap.Error(err))
		return response.InternalServerError(c, "Failed to close session")
	}

	scheduled := true
	if err := h.tasks.Enqueue(tasks.GenerateChatSummary, session.ID.String()); err != nil {
		h.logger.Warn("Failed to schedule summary", zap.String("session_id", session.ID.String()), zap.Error(err))
		scheduled = false
	}

	return response.Accepted(c, fiber.Map{
		"session_id":        session.ID,
		"summary_scheduled": scheduled,
	})
}

// GetSummary handles GET /api/v1/chats/:type/:id/summary
func (h *SessionHandler) GetSummary(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	chatType := model.ChatType(c.Params("type"))
	if chatType != model.ChatTypeSingle && chatType != model.ChatTypeGroup {
		return response.BadRequest(c, "Chat type must be single or group")
	}
	chatID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid chat ID")
	}

	info, err := h.store.GetChat(c.UserContext(), chatType, uint(chatID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return response.NotFound(c, "Chat not found")
		}
		return response.InternalServerError(c, "Failed to fetch chat")
	}
	if info.UserID() != user.ID {
		return response.NotFound(c, "Chat not found")
	}

	return response.Success(c, fiber.Map{
		"chat_type": chatType,
		"chat_id":   info.ChatID(),
		"summary":   info.Summary(),
	})
}

// ownedSession loads the :id session and checks the user owns its chat.
// When ok is false the HTTP response has been written and err is what the
// handler should return.
func (h *SessionHandler) ownedSession(c *fiber.Ctx, userID uint) (session *model.Session, ok bool, err error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, false, response.BadRequest(c, "Invalid session ID")
	}

	session, err = h.store.GetSession(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, response.NotFound(c, "Session not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch session")
	}

	info, err := h.store.GetChatInfo(c.UserContext(), id)
	if err != nil || info.UserID() != userID {
		return nil, false, response.NotFound(c, "Session not found")
	}
	return session, true, nil
}
