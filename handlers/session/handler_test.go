package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/agentsphere/agentsphere-api/database"
	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/broadcast"
	"github.com/agentsphere/agentsphere-api/services/orchestrator"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/agentsphere/agentsphere-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeConversation struct {
	replies []orchestrator.Response
	err     error
	got     []string
}

func (f *fakeConversation) HandleUserMessage(_ context.Context, _ uuid.UUID, _ uint, content string, onMessage func(orchestrator.Response)) ([]orchestrator.Response, error) {
	f.got = append(f.got, content)
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.replies {
		if onMessage != nil {
			onMessage(r)
		}
	}
	return f.replies, nil
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeEnqueuer) Enqueue(name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil
}

func (f *fakeEnqueuer) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

type testEnv struct {
	repo    *database.Repository
	hub     *broadcast.Hub
	tasks   *fakeEnqueuer
	convo   *fakeConversation
	handler *SessionHandler
	app     *fiber.App

	user     model.User
	stranger model.User
	chat     model.SingleChat
	session  *model.Session
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(database.Models()...))

	env := &testEnv{
		repo:  database.NewRepository(db, "secret"),
		hub:   broadcast.NewHub(8, nil),
		tasks: &fakeEnqueuer{},
		convo: &fakeConversation{},
	}

	org := model.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	env.user = model.User{Email: "dana@acme.test", Name: "Dana", OrganizationID: org.ID}
	require.NoError(t, db.Create(&env.user).Error)
	env.stranger = model.User{Email: "eve@acme.test", Name: "Eve", OrganizationID: org.ID}
	require.NoError(t, db.Create(&env.stranger).Error)

	agent := model.Agent{OrganizationID: org.ID, Name: "Helper"}
	require.NoError(t, db.Create(&agent).Error)
	env.chat = model.SingleChat{UserID: env.user.ID, AgentID: agent.ID, Summary: "## Topic Overview\nGreetings"}
	require.NoError(t, db.Create(&env.chat).Error)

	env.session, err = env.repo.CreateSession(context.Background(), env.user.ID, model.ChatTypeSingle, env.chat.ID, nil)
	require.NoError(t, err)

	env.handler = NewSessionHandler(env.repo, env.convo, env.tasks, env.hub, nil)
	env.app = env.newApp(&env.user)
	return env
}

func (env *testEnv) newApp(user *model.User) *fiber.App {
	app := fiber.New()
	h := env.handler

	app.Get("/ws/conversation/session/:session_id/", h.UpgradeConversation(), h.Conversation())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		middleware.SetUser(c, user, nil)
		return c.Next()
	})
	api.Post("/sessions", h.CreateSession)
	api.Post("/sessions/:id/messages", h.SendMessage)
	api.Post("/sessions/:id/close", h.CloseSession)
	api.Get("/chats/:type/:id/summary", h.GetSummary)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestCreateSession(t *testing.T) {
	env := newEnv(t)

	// the fixture already holds the active session
	resp := doJSON(t, env.app, "POST", "/api/v1/sessions", fiber.Map{"chat_type": "single", "chat_id": env.chat.ID})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	require.NoError(t, env.repo.DeactivateSession(context.Background(), env.session.ID))
	resp = doJSON(t, env.app, "POST", "/api/v1/sessions", fiber.Map{"chat_type": "single", "chat_id": env.chat.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Data model.Session `json:"data"`
	}
	decode(t, resp, &body)
	assert.True(t, body.Data.IsActive)
	assert.NotEqual(t, env.session.ID, body.Data.ID)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newEnv(t)

	resp := doJSON(t, env.app, "POST", "/api/v1/sessions", fiber.Map{"chat_type": "channel", "chat_id": env.chat.ID})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, env.app, "POST", "/api/v1/sessions", fiber.Map{"chat_type": "group", "chat_id": 999})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSendMessage(t *testing.T) {
	env := newEnv(t)
	env.convo.replies = []orchestrator.Response{{AgentID: 1, Source: "helper", Content: "Hello Dana"}}

	resp := doJSON(t, env.app, "POST", "/api/v1/sessions/"+env.session.ID.String()+"/messages", fiber.Map{"content": "hi"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Data struct {
			Messages []orchestrator.Response `json:"messages"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	assert.Equal(t, env.convo.replies, body.Data.Messages)
	assert.Equal(t, []string{"hi"}, env.convo.got)
}

func TestSendMessageStreams(t *testing.T) {
	env := newEnv(t)
	env.convo.replies = []orchestrator.Response{
		{AgentID: 1, Source: "helper", Content: "first"},
		{AgentID: 1, Source: "helper", Content: "second"},
	}

	resp := doJSON(t, env.app, "POST", "/api/v1/sessions/"+env.session.ID.String()+"/messages?stream=true", fiber.Map{"content": "hi"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t,
		"event: message\ndata: {\"agent_id\":1,\"source\":\"helper\",\"content\":\"first\"}\n\n"+
			"event: message\ndata: {\"agent_id\":1,\"source\":\"helper\",\"content\":\"second\"}\n\n"+
			"event: complete\ndata: {\"count\":2}\n\n",
		string(raw))
}

func TestSendMessageRejects(t *testing.T) {
	env := newEnv(t)
	path := "/api/v1/sessions/" + env.session.ID.String() + "/messages"

	resp := doJSON(t, env.app, "POST", path, fiber.Map{"content": ""})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, env.app, "POST", "/api/v1/sessions/nope/messages", fiber.Map{"content": "hi"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, env.app, "POST", "/api/v1/sessions/"+uuid.NewString()+"/messages", fiber.Map{"content": "hi"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, env.newApp(&env.stranger), "POST", path, fiber.Map{"content": "hi"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.repo.DeactivateSession(context.Background(), env.session.ID))
	resp = doJSON(t, env.app, "POST", path, fiber.Map{"content": "hi"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	assert.Empty(t, env.convo.got)
}

func TestCloseSession(t *testing.T) {
	env := newEnv(t)

	resp := doJSON(t, env.app, "POST", "/api/v1/sessions/"+env.session.ID.String()+"/close", nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	got, err := env.repo.GetSession(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, [][]string{{tasks.GenerateChatSummary, env.session.ID.String()}}, env.tasks.Calls())
}

func TestGetSummary(t *testing.T) {
	env := newEnv(t)

	resp := doJSON(t, env.app, "GET", "/api/v1/chats/single/"+itoa(env.chat.ID)+"/summary", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Summary string `json:"summary"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "## Topic Overview\nGreetings", body.Data.Summary)

	resp = doJSON(t, env.newApp(&env.stranger), "GET", "/api/v1/chats/single/"+itoa(env.chat.ID)+"/summary", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, env.app, "GET", "/api/v1/chats/direct/1/summary", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
