package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingServer answers every request with body and keeps the last decoded request
func recordingServer(t *testing.T, path string, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		last = map[string]any{}
		_ = json.Unmarshal(raw, &last)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestOpenAIClientChat(t *testing.T) {
	srv, last := recordingServer(t, "/v1/chat/completions", `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "qwen",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "checking",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}]
			}
		}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
	}`)

	c := CreateClient(ClientConfig{
		APIType:   model.APITypeOpenAICompatible,
		BaseURL:   srv.URL + "/v1",
		Model:     "qwen",
		MaxTokens: 128,
	})
	require.NotNil(t, c)

	resp, err := c.Chat(context.Background(), ChatRequest{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		Tools:    []ToolDefinition{{Name: "lookup", Description: "search"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "checking", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"q":"go"}`, resp.ToolCalls[0].Arguments)

	sent := *last
	assert.Equal(t, "qwen", sent["model"])
	assert.EqualValues(t, 128, sent["max_tokens"])
	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Len(t, sent["tools"], 1)
}

func TestAnthropicClientChat(t *testing.T) {
	srv, last := recordingServer(t, "/v1/messages", `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": "hello there"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`)

	c := CreateClient(ClientConfig{
		APIType: model.APITypeAnthropic,
		BaseURL: srv.URL,
		Model:   "claude-test",
		APIKey:  "sk-ant",
	})
	require.NotNil(t, c)

	resp, err := c.Chat(context.Background(), ChatRequest{
		System:    "persona",
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)

	sent := *last
	assert.EqualValues(t, 64, sent["max_tokens"])
	assert.NotNil(t, sent["system"])
}

func TestOllamaClientChat(t *testing.T) {
	srv, last := recordingServer(t, "/api/chat", `{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"local reply"},"done":true}`)

	c := CreateClient(ClientConfig{
		APIType:   model.APITypeOllama,
		BaseURL:   srv.URL + "/v1",
		Model:     "llama3.2",
		MaxTokens: 256,
	})
	require.NotNil(t, c)

	resp, err := c.Chat(context.Background(), ChatRequest{
		System:   "persona",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local reply", resp.Content)

	sent := *last
	assert.Equal(t, false, sent["stream"])
	assert.EqualValues(t, 256, sent["options"].(map[string]any)["num_predict"])
}
