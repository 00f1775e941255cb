package orchestrator

import (
	"context"
	"testing"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/agentsphere/agentsphere-api/services/memory"
	"github.com/agentsphere/agentsphere-api/services/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	calls []map[string]any
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo text back" }
func (e *echoTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"text": map[string]any{"type": "string"}}}
}
func (e *echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	e.calls = append(e.calls, args)
	return "echo:" + args["text"].(string), nil
}

type staticResolver struct {
	adapters []tools.Adapter
	servers  []model.MCPServer
}

func (s *staticResolver) Resolve(_ context.Context, servers []model.MCPServer) []tools.Adapter {
	s.servers = servers
	return s.adapters
}

var helperBot = model.Agent{ID: 1, Name: "Helper Bot", Description: "Helps", SystemPrompt: "You are helpful."}

func newTestFactory(repo *memoryRepo, resolver ToolResolver, client llm.Client) *Factory {
	return NewFactory(repo, resolver, nil).WithClientConstructor(func(llm.ClientConfig) llm.Client {
		return client
	})
}

func TestBuildParticipantComposesPersona(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}
	client := replying("hello")

	p, err := newTestFactory(repo, nil, client).BuildParticipant(context.Background(), helperBot, nil)
	require.NoError(t, err)

	agent := p.(*AssistantAgent)
	assert.Equal(t, "helper_bot", agent.Name())
	assert.Equal(t, uint(1), agent.AgentID())
	assert.Equal(t, "Helps", agent.Description())
	assert.Equal(t, "You are helpful."+continuityInstructions, agent.systemPrompt)
	assert.NotContains(t, agent.systemPrompt, toolInstructions)
}

func TestBuildParticipantSkipsWithoutLLM(t *testing.T) {
	repo := newMemoryRepo()

	_, err := newTestFactory(repo, nil, replying("x")).BuildParticipant(context.Background(), helperBot, nil)
	assert.ErrorIs(t, err, ErrSkipAgent)
}

func TestBuildParticipantSkipsWhenClientFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}

	f := NewFactory(repo, nil, nil).WithClientConstructor(func(llm.ClientConfig) llm.Client { return nil })
	_, err := f.BuildParticipant(context.Background(), helperBot, nil)
	assert.ErrorIs(t, err, ErrSkipAgent)
}

func TestBuildParticipantSkipsUnusableName(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}

	agent := helperBot
	agent.Name = "!!!"
	_, err := newTestFactory(repo, nil, replying("x")).BuildParticipant(context.Background(), agent, nil)
	assert.ErrorIs(t, err, ErrSkipAgent)
}

func TestBuildParticipantWithToolsRunsToolLoop(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}
	repo.servers[1] = []model.MCPServer{{ID: 3, Name: "tools", URL: "http://tools.local/sse"}}

	tool := &echoTool{}
	resolver := &staticResolver{adapters: []tools.Adapter{tool}}

	client := &fakeClient{caps: llm.NativeToolCalling, fn: func(n int, _ llm.ChatRequest) (*llm.ChatResponse, error) {
		if n == 0 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`}}}, nil
		}
		return &llm.ChatResponse{Content: "the tool said echo:hi"}, nil
	}}

	p, err := newTestFactory(repo, resolver, client).BuildParticipant(context.Background(), helperBot, nil)
	require.NoError(t, err)
	assert.Contains(t, p.(*AssistantAgent).systemPrompt, toolInstructions)
	assert.Len(t, resolver.servers, 1)

	p.Observe(TextMessage{Source: "user", Content: "call echo"})
	msg, err := p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TextMessage{Source: "helper_bot", Content: "the tool said echo:hi"}, msg)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "hi", tool.calls[0]["text"])

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Name)

	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "echo:hi", last.Content)
}

func TestUnknownToolCallIsReportedToModel(t *testing.T) {
	agent := &AssistantAgent{name: "a", tools: map[string]tools.Adapter{}}
	out := agent.callTool(context.Background(), llm.ToolCall{Name: "missing"})
	assert.Contains(t, out, "unknown tool")
}

func TestParticipantSeesHistoryAndSummary(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}
	client := replying("noted")

	history := memory.History("We talked about cats.", []memory.PreviousMessage{
		{Sender: model.SenderUser, SenderName: "Dana", Content: "I like cats"},
		{Sender: model.SenderAgent, SenderName: "Helper Bot", AgentID: 1, Content: "Cats are great"},
	})

	p, err := newTestFactory(repo, nil, client).BuildParticipant(context.Background(), helperBot, history)
	require.NoError(t, err)

	p.Observe(TextMessage{Source: "user", Content: "and dogs?"})
	_, err = p.Speak(context.Background())
	require.NoError(t, err)

	msgs := client.Requests()[0].Messages
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].Content, "Summary of the conversation so far:\nWe talked about cats.")
	assert.Equal(t, "Dana: I like cats", msgs[1].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "user: and dogs?", msgs[3].Content)
}

func TestBuildParticipantsAppendsUserProxyLast(t *testing.T) {
	repo := newMemoryRepo()
	repo.llms[1] = &model.LLMDetails{Model: "m"}
	repo.llms[2] = &model.LLMDetails{Model: "m"}

	agents := []model.Agent{
		helperBot,
		{ID: 2, Name: "helper-bot"}, // same slug
		{ID: 3, Name: "No LLM"},
	}

	participants := newTestFactory(repo, nil, replying("x")).BuildParticipants(context.Background(), agents, nil)
	require.Len(t, participants, 2)
	assert.Equal(t, uint(1), participants[0].AgentID())
	assert.Equal(t, UserProxyName, participants[1].Name())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "research_bot", Slug("Research Bot!"))
	assert.Equal(t, "unicode_agent", Slug("Ünïcode Agent"))
	assert.Equal(t, "", Slug("!!!"))
}
