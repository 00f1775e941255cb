// Package memory seeds per-agent conversational history for a team run.
package memory

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/llm"
)

const (
	// ContextCapacity is how many entries the model sees as history
	ContextCapacity = 32
	// PreviousMessageLimit caps what is loaded from storage per run
	PreviousMessageLimit = 16
)

var ErrMalformedEntry = errors.New("malformed memory entry")

// PreviousMessage is one stored message as handed to the builder
type PreviousMessage struct {
	Sender     model.SenderKind
	SenderName string
	AgentID    uint // set for agent messages
	Content    string
}

// Entry is one remembered message
type Entry struct {
	Source  string
	Role    llm.Role
	Content string
}

// Memory is the ordered list of entries an agent remembers
type Memory struct {
	agentID uint
	entries []Entry
}

func (m *Memory) Add(pm PreviousMessage) error {
	if strings.TrimSpace(pm.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrMalformedEntry)
	}

	switch pm.Sender {
	case model.SenderUser:
		m.entries = append(m.entries, Entry{Source: nameOr(pm.SenderName, "user"), Role: llm.RoleUser, Content: pm.Content})
	case model.SenderAgent:
		role := llm.RoleUser
		if pm.AgentID != 0 && pm.AgentID == m.agentID {
			role = llm.RoleAssistant
		}
		m.entries = append(m.entries, Entry{Source: nameOr(pm.SenderName, "agent"), Role: role, Content: pm.Content})
	default:
		return fmt.Errorf("%w: unknown sender %q", ErrMalformedEntry, pm.Sender)
	}
	return nil
}

func (m *Memory) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) Len() int { return len(m.entries) }

// BufferedContext is a fixed-size ring buffer of model messages
type BufferedContext struct {
	mu    sync.Mutex
	buf   []Entry
	start int
	size  int
}

func NewBufferedContext(capacity int) *BufferedContext {
	if capacity <= 0 {
		capacity = ContextCapacity
	}
	return &BufferedContext{buf: make([]Entry, capacity)}
}

// Add appends e, evicting the oldest entry when full
func (c *BufferedContext) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size < len(c.buf) {
		c.buf[(c.start+c.size)%len(c.buf)] = e
		c.size++
		return
	}
	c.buf[c.start] = e
	c.start = (c.start + 1) % len(c.buf)
}

// Entries returns the buffered entries oldest first
func (c *BufferedContext) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.buf[(c.start+i)%len(c.buf)])
	}
	return out
}

// Messages renders the buffer as provider-neutral chat messages.
// Entries from other speakers carry their name so the model can tell them apart.
func (c *BufferedContext) Messages() []llm.Message {
	entries := c.Entries()
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		content := e.Content
		if e.Role == llm.RoleUser && e.Source != "" {
			content = e.Source + ": " + e.Content
		}
		out = append(out, llm.Message{Role: e.Role, Content: content})
	}
	return out
}

func (c *BufferedContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *BufferedContext) Cap() int { return len(c.buf) }

// Build seeds a memory and its context window for one agent. Malformed
// records are skipped and add failures never abort the build; onSkip, when
// non-nil, is told about each skipped record.
func Build(agentID uint, previous iter.Seq[PreviousMessage], onSkip func(PreviousMessage, error)) (*Memory, *BufferedContext) {
	mem := &Memory{agentID: agentID}
	ctx := NewBufferedContext(ContextCapacity)

	if previous != nil {
		for pm := range previous {
			if err := safeAdd(mem, pm); err != nil {
				if onSkip != nil {
					onSkip(pm, err)
				}
				continue
			}
		}
	}

	for _, e := range mem.entries {
		ctx.Add(e)
	}
	return mem, ctx
}

func safeAdd(mem *Memory, pm PreviousMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memory add panicked: %v", r)
		}
	}()
	return mem.Add(pm)
}

// SummaryEntry builds the synthetic leading record that carries the chat summary
func SummaryEntry(summary string) PreviousMessage {
	return PreviousMessage{
		Sender:     model.SenderAgent,
		SenderName: "summary",
		Content:    "Summary of the conversation so far:\n" + summary,
	}
}

// History returns a restartable sequence of the summary entry (when non-empty)
// followed by msgs, oldest first.
func History(summary string, msgs []PreviousMessage) iter.Seq[PreviousMessage] {
	return func(yield func(PreviousMessage) bool) {
		if strings.TrimSpace(summary) != "" {
			if !yield(SummaryEntry(summary)) {
				return
			}
		}
		for _, m := range msgs {
			if !yield(m) {
				return
			}
		}
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
