package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils/response"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pingContent  = "ping"
	pongContent  = "pong"
	userSource   = "user"
	serverSource = "server"

	localsSession   = "ws_session"
	disconnectGrace = 10 * time.Second
)

// UpgradeConversation refuses the upgrade unless the path names an active session
func (h *SessionHandler) UpgradeConversation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		id, err := uuid.Parse(c.Params("session_id"))
		if err != nil {
			return response.Forbidden(c, "Invalid session ID")
		}

		session, err := h.store.GetSession(c.UserContext(), id)
		if err != nil || !session.IsActive {
			return response.Forbidden(c, "Session is not available")
		}

		c.Locals(localsSession, session)
		return c.Next()
	}
}

// Conversation serves an accepted session socket
func (h *SessionHandler) Conversation() fiber.Handler {
	return websocket.New(h.serveConversation)
}

// conversation is one accepted socket watching a session
type conversation struct {
	conn    *websocket.Conn
	session *model.Session
	sub     *broadcast.Subscription

	store  Store
	tasks  Enqueuer
	logger *zap.Logger

	writeMu sync.Mutex
	once    sync.Once
}

func (h *SessionHandler) serveConversation(conn *websocket.Conn) {
	session, ok := conn.Locals(localsSession).(*model.Session)
	if !ok || session == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.groups.Join(ctx, session.GroupName())
	if err != nil {
		cancel()
		h.logger.Error("Failed to join session group", zap.String("session_id", session.ID.String()), zap.Error(err))
		return
	}

	cv := &conversation{
		conn:    conn,
		session: session,
		sub:     sub,
		store:   h.store,
		tasks:   h.tasks,
		logger:  h.logger.With(zap.String("session_id", session.ID.String())),
	}

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		cv.forward(ctx)
	}()

	// conn goes back to the pool when this handler returns, so forward has to
	// be gone first
	defer func() {
		cancel()
		cv.disconnect()
		if nc := conn.NetConn(); nc != nil {
			// unblocks a write stuck on a peer that stopped reading
			_ = nc.SetWriteDeadline(time.Now())
		}
		<-forwarded
	}()

	cv.logger.Debug("Session socket connected")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cv.logger.Debug("Session socket read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		cv.receive(data)
	}
}

// receive handles one inbound frame. Only the ping envelope is answered.
func (cv *conversation) receive(data []byte) {
	env, err := broadcast.ParseEnvelope(data)
	if err != nil {
		return
	}
	if env.Content == pingContent && env.Source == userSource {
		if err := cv.write(broadcast.Envelope{Content: pongContent, Source: serverSource}.Bytes()); err != nil {
			cv.logger.Debug("Failed to answer ping", zap.Error(err))
		}
	}
}

// forward copies group payloads to the socket until ctx ends or the group closes
func (cv *conversation) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-cv.sub.Messages():
			if !ok {
				return
			}
			if err := cv.write(payload); err != nil {
				cv.logger.Debug("Failed to forward message", zap.Error(err))
				return
			}
		}
	}
}

func (cv *conversation) write(payload []byte) error {
	cv.writeMu.Lock()
	defer cv.writeMu.Unlock()
	if cv.conn == nil {
		return errors.New("connection closed")
	}
	return cv.conn.WriteMessage(websocket.TextMessage, payload)
}

// disconnect leaves the group, closes the session and schedules its summary.
// Only the first call has any effect.
func (cv *conversation) disconnect() {
	cv.once.Do(func() {
		cv.sub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
		defer cancel()

		if err := cv.store.DeactivateSession(ctx, cv.session.ID); err != nil {
			cv.logger.Error("Failed to deactivate session", zap.Error(err))
		}
		if err := cv.tasks.Enqueue(tasks.GenerateChatSummary, cv.session.ID.String()); err != nil {
			cv.logger.Warn("Failed to schedule summary", zap.Error(err))
		}
		cv.logger.Debug("Session socket disconnected")
	})
}
