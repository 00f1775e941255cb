package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// ollamaClient talks to the native Ollama chat endpoint. Tool definitions are
// not forwarded; agents backed by it run without tools.
type ollamaClient struct {
	client    *api.Client
	model     string
	maxTokens int
}

func newOllamaClient(cfg ClientConfig) (Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultOllamaURL
	}
	// OpenAI-style URLs such as http://host:11434/v1 point at the same server
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}

	return &ollamaClient{
		client:    api.NewClient(u, http.DefaultClient),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *ollamaClient) Model() string            { return c.model }
func (c *ollamaClient) Capabilities() Capability { return 0 }

func (c *ollamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, api.Message{Role: "assistant", Content: m.Content})
		case RoleTool:
			messages = append(messages, api.Message{Role: "user", Content: "Tool result: " + m.Content})
		default:
			messages = append(messages, api.Message{Role: "user", Content: m.Content})
		}
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxTokens(req, c.maxTokens)},
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &ChatResponse{Content: content.String()}, nil
}
