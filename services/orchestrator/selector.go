package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentsphere/agentsphere-api/services/llm"
	"go.uber.org/zap"
)

const selectorPrompt = `You are in a role play game. The following roles are available:
%s

Read the following conversation. Then select the next role from %s to play. Only return the role.

%s

Read the above conversation. Then select the next role from %s to play. Only return the role.`

// SelectorTeam asks a model to choose the next speaker after every message
type SelectorTeam struct {
	groupChat
	client llm.Client
}

func NewSelectorTeam(client llm.Client, participants []Participant, termination Termination, logger *zap.Logger) (*SelectorTeam, error) {
	if client == nil {
		return nil, fmt.Errorf("selector team: model client is required")
	}
	gc, err := newGroupChat(participants, termination, logger)
	if err != nil {
		return nil, err
	}
	return &SelectorTeam{groupChat: gc, client: client}, nil
}

func (t *SelectorTeam) Run(ctx context.Context, task string) <-chan Event {
	previous := -1
	return t.run(ctx, task, func(ctx context.Context, transcript []TextMessage) (Participant, error) {
		idx, err := t.selectSpeaker(ctx, transcript, previous)
		if err != nil {
			return nil, err
		}
		previous = idx
		return t.participants[idx], nil
	})
}

// selectSpeaker returns the index of the next speaker. The previous speaker is
// not offered again unless it is the only participant. An answer naming no
// candidate falls back to the next participant in rotation.
func (t *SelectorTeam) selectSpeaker(ctx context.Context, transcript []TextMessage, previous int) (int, error) {
	candidates := make([]int, 0, len(t.participants))
	for i := range t.participants {
		if i != previous || len(t.participants) == 1 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	resp, err := t.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: t.prompt(transcript, candidates)}},
	})
	if err != nil {
		return 0, fmt.Errorf("selector: %w", err)
	}

	if idx, ok := t.match(resp.Content, candidates); ok {
		return idx, nil
	}

	t.logger.Debug("Selector answer matched no candidate, using rotation", zap.String("answer", resp.Content))
	for _, idx := range candidates {
		if idx > previous {
			return idx, nil
		}
	}
	return candidates[0], nil
}

func (t *SelectorTeam) prompt(transcript []TextMessage, candidates []int) string {
	var roles, history strings.Builder
	names := make([]string, 0, len(candidates))

	for i, p := range t.participants {
		fmt.Fprintf(&roles, "%s: %s\n", p.Name(), p.Description())
		for _, c := range candidates {
			if c == i {
				names = append(names, p.Name())
			}
		}
	}
	for _, m := range transcript {
		fmt.Fprintf(&history, "%s: %s\n\n", m.Source, m.Content)
	}

	list := "[" + strings.Join(names, ", ") + "]"
	return fmt.Sprintf(selectorPrompt, strings.TrimSpace(roles.String()), list, strings.TrimSpace(history.String()), list)
}

// match finds the candidate named in answer: an exact name first, else the
// longest candidate name mentioned anywhere in it.
func (t *SelectorTeam) match(answer string, candidates []int) (int, bool) {
	answer = strings.Trim(strings.TrimSpace(answer), "\"'`.,:;!*")
	for _, idx := range candidates {
		if strings.EqualFold(answer, t.participants[idx].Name()) {
			return idx, true
		}
	}

	best, bestLen := -1, 0
	lower := strings.ToLower(answer)
	for _, idx := range candidates {
		name := strings.ToLower(t.participants[idx].Name())
		if len(name) > bestLen && strings.Contains(lower, name) {
			best, bestLen = idx, len(name)
		}
	}
	return best, best >= 0
}
