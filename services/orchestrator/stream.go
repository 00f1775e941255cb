package orchestrator

import (
	"context"

	"github.com/agentsphere/agentsphere-api/model"
)

// ApologyMessage is returned when a run produced nothing to show
const ApologyMessage = "I'm sorry, I wasn't able to generate a response. Please try again."

// fallbackSource is the generic label that always resolves to an agent
const fallbackSource = "agent"

// Response is one agent message produced by a run
type Response struct {
	AgentID uint   `json:"agent_id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Run submits userMessage to team and collects agent messages in the order the
// team emits them. onMessage, when set, is called synchronously for each one
// before the next event is read. A run that yields nothing, or a nil team,
// produces a single apology from the first agent.
func Run(ctx context.Context, team Team, userMessage string, agents []model.Agent, onMessage func(Response)) []Response {
	var responses []Response

	if team != nil {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		slugs := make([]string, len(agents))
		for i, a := range agents {
			slugs[i] = Slug(a.Name)
		}

	consume:
		for ev := range team.Run(runCtx, userMessage) {
			switch ev := ev.(type) {
			case TaskResult:
				continue
			case UserInputRequested:
				break consume
			case TextMessage:
				if ev.Source == UserProxyName {
					continue
				}
				agentID, ok := attribute(ev.Source, agents, slugs)
				if !ok {
					continue
				}
				r := Response{AgentID: agentID, Source: ev.Source, Content: ev.Content}
				responses = append(responses, r)
				if onMessage != nil {
					onMessage(r)
				}
			}
		}
	}

	if len(responses) == 0 && len(agents) > 0 {
		r := Response{AgentID: agents[0].ID, Source: fallbackSource, Content: ApologyMessage}
		responses = append(responses, r)
		if onMessage != nil {
			onMessage(r)
		}
	}
	return responses
}

// attribute resolves the agent behind a source label. Unmatched labels fall to
// the first agent; there is nothing to attribute to when agents is empty.
func attribute(source string, agents []model.Agent, slugs []string) (uint, bool) {
	if len(agents) == 0 {
		return 0, false
	}
	for i, a := range agents {
		if source == slugs[i] || source == fallbackSource {
			return a.ID, true
		}
	}
	return agents[0].ID, true
}
