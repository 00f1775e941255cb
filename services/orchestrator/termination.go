package orchestrator

import (
	"fmt"
	"strings"
)

const (
	// TerminateKeyword ends a run when an agent says it
	TerminateKeyword = "TERMINATE"
	// MaxTeamMessages caps a run, counting the task message itself
	MaxTeamMessages = 8
)

// Termination decides after every message whether the run is over
type Termination interface {
	// Check returns a stop reason and true when the run should end
	Check(transcript []TextMessage) (string, bool)
}

// TextMention stops when the latest message contains Text
type TextMention struct {
	Text string
}

func (t TextMention) Check(transcript []TextMessage) (string, bool) {
	if len(transcript) == 0 {
		return "", false
	}
	if strings.Contains(transcript[len(transcript)-1].Content, t.Text) {
		return fmt.Sprintf("text %q mentioned", t.Text), true
	}
	return "", false
}

// MaxMessages stops once the transcript holds N messages
type MaxMessages struct {
	N int
}

func (m MaxMessages) Check(transcript []TextMessage) (string, bool) {
	if len(transcript) >= m.N {
		return fmt.Sprintf("maximum number of messages %d reached", m.N), true
	}
	return "", false
}

type anyOf []Termination

// Or stops as soon as any of the conditions does
func Or(conds ...Termination) Termination {
	return anyOf(conds)
}

func (a anyOf) Check(transcript []TextMessage) (string, bool) {
	for _, c := range a {
		if reason, ok := c.Check(transcript); ok {
			return reason, true
		}
	}
	return "", false
}

// DefaultTermination is TERMINATE or eight messages, whichever comes first
func DefaultTermination() Termination {
	return Or(TextMention{Text: TerminateKeyword}, MaxMessages{N: MaxTeamMessages})
}
