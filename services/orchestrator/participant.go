package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/agentsphere/agentsphere-api/services/memory"
	"github.com/agentsphere/agentsphere-api/services/tools"
	"go.uber.org/zap"
)

// UserProxyName is the fixed name of the human seat in every team
const UserProxyName = "user"

const maxToolRounds = 4

var (
	ErrInvalidName   = errors.New("participant name must be letters, digits, underscores or hyphens")
	ErrDuplicateName = errors.New("duplicate participant name")
	ErrReservedName  = errors.New("participant name is reserved")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Participant is a seat in a team
type Participant interface {
	Name() string
	Description() string
	// AgentID is zero for the user proxy
	AgentID() uint
	// Observe records a message that was added to the team transcript
	Observe(msg TextMessage)
	// Speak produces the participant's next message
	Speak(ctx context.Context) (TextMessage, error)
}

// UserProxy stands in for the human. A team that reaches it stops and asks for input.
type UserProxy struct{}

func NewUserProxy() *UserProxy { return &UserProxy{} }

func (*UserProxy) Name() string        { return UserProxyName }
func (*UserProxy) Description() string { return "The human user taking part in the conversation" }
func (*UserProxy) AgentID() uint       { return 0 }
func (*UserProxy) Observe(TextMessage) {}

func (*UserProxy) Speak(context.Context) (TextMessage, error) {
	return TextMessage{}, errors.New("user proxy cannot speak on its own")
}

func isUserProxy(p Participant) bool {
	_, ok := p.(*UserProxy)
	return ok
}

// AssistantAgent is an LLM-backed participant with its own bounded context
type AssistantAgent struct {
	agentID      uint
	name         string
	description  string
	systemPrompt string
	client       llm.Client
	context      *memory.BufferedContext
	tools        map[string]tools.Adapter
	toolDefs     []llm.ToolDefinition
	logger       *zap.Logger
}

func (a *AssistantAgent) Name() string        { return a.name }
func (a *AssistantAgent) Description() string { return a.description }
func (a *AssistantAgent) AgentID() uint       { return a.agentID }

func (a *AssistantAgent) Observe(msg TextMessage) {
	role := llm.RoleUser
	if msg.Source == a.name {
		role = llm.RoleAssistant
	}
	a.context.Add(memory.Entry{Source: msg.Source, Role: role, Content: msg.Content})
}

func (a *AssistantAgent) Speak(ctx context.Context) (TextMessage, error) {
	messages := a.context.Messages()

	req := llm.ChatRequest{System: a.systemPrompt}
	if len(a.toolDefs) > 0 && a.client.Capabilities()&llm.NativeToolCalling != 0 {
		req.Tools = a.toolDefs
	}

	for round := 0; ; round++ {
		req.Messages = messages
		resp, err := a.client.Chat(ctx, req)
		if err != nil {
			return TextMessage{}, fmt.Errorf("agent %s: %w", a.name, err)
		}

		if len(resp.ToolCalls) == 0 || round >= maxToolRounds {
			return TextMessage{Source: a.name, Content: resp.Content}, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    a.callTool(ctx, call),
			})
		}
	}
}

func (a *AssistantAgent) callTool(ctx context.Context, call llm.ToolCall) string {
	adapter, ok := a.tools[call.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments: %v", err)
		}
	}

	out, err := adapter.Call(ctx, args)
	if err != nil {
		a.logger.Debug("Tool call failed", zap.String("agent", a.name), zap.String("tool", call.Name), zap.Error(err))
		return fmt.Sprintf("error: %v", err)
	}
	return out
}

// AcceptParticipants drops participants whose names a team would reject
// (malformed, duplicate, or a non-proxy claiming the proxy name) and reports each drop.
func AcceptParticipants(participants []Participant, onReject func(Participant, error)) []Participant {
	seen := make(map[string]bool, len(participants))
	kept := make([]Participant, 0, len(participants))

	for _, p := range participants {
		if p == nil {
			continue
		}

		var err error
		switch {
		case !validName.MatchString(p.Name()):
			err = fmt.Errorf("%w: %q", ErrInvalidName, p.Name())
		case p.Name() == UserProxyName && !isUserProxy(p):
			err = fmt.Errorf("%w: %q", ErrReservedName, p.Name())
		case seen[p.Name()]:
			err = fmt.Errorf("%w: %q", ErrDuplicateName, p.Name())
		}
		if err != nil {
			if onReject != nil {
				onReject(p, err)
			}
			continue
		}

		seen[p.Name()] = true
		kept = append(kept, p)
	}
	return kept
}

// CountAgents returns how many participants are real agents
func CountAgents(participants []Participant) int {
	n := 0
	for _, p := range participants {
		if !isUserProxy(p) {
			n++
		}
	}
	return n
}
