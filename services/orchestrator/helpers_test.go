package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/google/uuid"
)

// fakeClient answers every chat with fn, recording requests
type fakeClient struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	caps     llm.Capability
	fn       func(n int, req llm.ChatRequest) (*llm.ChatResponse, error)
}

func replying(replies ...string) *fakeClient {
	return &fakeClient{fn: func(n int, _ llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: replies[n%len(replies)]}, nil
	}}
}

func (c *fakeClient) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	n := len(c.requests)
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.fn(n, req)
}

func (c *fakeClient) Capabilities() llm.Capability { return c.caps }
func (c *fakeClient) Model() string                { return "fake" }

func (c *fakeClient) Requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.requests...)
}

// stubParticipant replies from a fixed script
type stubParticipant struct {
	name    string
	id      uint
	replies []string
	err     error

	mu   sync.Mutex
	turn int
	seen []TextMessage
}

func (p *stubParticipant) Name() string        { return p.name }
func (p *stubParticipant) Description() string { return "stub " + p.name }
func (p *stubParticipant) AgentID() uint       { return p.id }

func (p *stubParticipant) Observe(msg TextMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, msg)
}

func (p *stubParticipant) Speak(context.Context) (TextMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return TextMessage{}, p.err
	}
	reply := fmt.Sprintf("%s reply %d", p.name, p.turn+1)
	if len(p.replies) > 0 {
		reply = p.replies[p.turn%len(p.replies)]
	}
	p.turn++
	return TextMessage{Source: p.name, Content: reply}, nil
}

// scriptedTeam emits a fixed event sequence
type scriptedTeam struct {
	events []Event
	ran    chan struct{}
}

func (s *scriptedTeam) Participants() []Participant { return nil }

func (s *scriptedTeam) Run(ctx context.Context, _ string) <-chan Event {
	ch := make(chan Event)
	s.ran = make(chan struct{})
	go func() {
		defer close(s.ran)
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("team run did not finish")
			return out
		}
	}
}

var errNotFound = errors.New("not found")

// memoryRepo is an in-memory Repository
type memoryRepo struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*model.Session
	chats      map[uuid.UUID]*model.ChatInfo
	agents     map[uint]model.Agent
	group      map[uint][]model.Agent
	llms       map[uint]*model.LLMDetails // keyed by agent id
	sessionLLM map[uint]*model.LLMDetails // keyed by llm id
	servers    map[uint][]model.MCPServer
	previous   []model.Message
	saved      []model.Message
	listed     map[uint][]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions:   map[uuid.UUID]*model.Session{},
		chats:      map[uuid.UUID]*model.ChatInfo{},
		agents:     map[uint]model.Agent{},
		group:      map[uint][]model.Agent{},
		llms:       map[uint]*model.LLMDetails{},
		sessionLLM: map[uint]*model.LLMDetails{},
		servers:    map[uint][]model.MCPServer{},
		listed:     map[uint][]string{},
	}
}

func (r *memoryRepo) GetSession(_ context.Context, id uuid.UUID) (*model.Session, error) {
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, errNotFound
}

func (r *memoryRepo) GetChatInfo(_ context.Context, id uuid.UUID) (*model.ChatInfo, error) {
	if c, ok := r.chats[id]; ok {
		return c, nil
	}
	return nil, errNotFound
}

func (r *memoryRepo) SaveMessage(_ context.Context, s *model.Session, content string, sender model.SenderKind, userID, agentID *uint) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := model.Message{ID: uint(len(r.saved) + 1), SessionID: s.ID, Sender: sender, UserID: userID, AgentID: agentID, Content: content}
	r.saved = append(r.saved, m)
	return &m, nil
}

func (r *memoryRepo) GetAgent(_ context.Context, id uint) (*model.Agent, error) {
	if a, ok := r.agents[id]; ok {
		return &a, nil
	}
	return nil, errNotFound
}

func (r *memoryRepo) GetAgentsForGroupChat(_ context.Context, id uint) ([]model.Agent, error) {
	return r.group[id], nil
}

func (r *memoryRepo) GetLLMDetails(_ context.Context, agentID uint) (*model.LLMDetails, error) {
	if d, ok := r.llms[agentID]; ok {
		return d, nil
	}
	return nil, errNotFound
}

func (r *memoryRepo) GetLLMDetailsByLLMID(_ context.Context, llmID uint) (*model.LLMDetails, error) {
	if d, ok := r.sessionLLM[llmID]; ok {
		return d, nil
	}
	return nil, errNotFound
}

func (r *memoryRepo) GetMCPServers(_ context.Context, agentID uint) ([]model.MCPServer, error) {
	return r.servers[agentID], nil
}

func (r *memoryRepo) GetPreviousMessages(context.Context, *model.Session, int) ([]model.Message, error) {
	return r.previous, nil
}

func (r *memoryRepo) UpdateMCPServerTools(_ context.Context, serverID uint, tools []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed[serverID] = tools
	return nil
}

func (r *memoryRepo) Saved() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Message(nil), r.saved...)
}

func uintPtr(v uint) *uint { return &v }
