// Package llm builds chat-completion clients for the providers an LLM record can point at.
package llm

import (
	"context"

	"github.com/agentsphere/agentsphere-api/model"
)

// Capability is a bit set of optional provider features
type Capability uint8

const (
	NativeToolCalling Capability = 1 << iota
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one provider-neutral chat turn
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant turns that requested tools
	ToolCallID string     // tool turns answering a call
}

// ToolDefinition describes a callable tool in JSON-schema terms
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool invocation requested by the model. Arguments is raw JSON.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int // overrides the client's default budget when > 0
}

type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is a chat-completion client bound to one model
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Capabilities() Capability
	Model() string
}

// ClientConfig is everything needed to build a Client
type ClientConfig struct {
	APIType   model.APIType
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
}
