package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAgents = []model.Agent{
	{ID: 7, Name: "Research Bot"},
	{ID: 9, Name: "Writer"},
}

func TestRunPreservesEmissionOrder(t *testing.T) {
	team := &scriptedTeam{events: []Event{
		TextMessage{Source: "user", Content: "question"},
		TextMessage{Source: "research_bot", Content: "first"},
		TextMessage{Source: "writer", Content: "second"},
		TextMessage{Source: "research_bot", Content: "third"},
		TaskResult{StopReason: "done"},
	}}

	var streamed []Response
	got := Run(context.Background(), team, "question", testAgents, func(r Response) {
		streamed = append(streamed, r)
	})

	want := []Response{
		{AgentID: 7, Source: "research_bot", Content: "first"},
		{AgentID: 9, Source: "writer", Content: "second"},
		{AgentID: 7, Source: "research_bot", Content: "third"},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, streamed)
}

func TestRunStopsAtUserInputRequest(t *testing.T) {
	team := &scriptedTeam{events: []Event{
		TextMessage{Source: "writer", Content: "before"},
		UserInputRequested{Source: "user"},
		TextMessage{Source: "writer", Content: "after"},
		TaskResult{},
	}}

	got := Run(context.Background(), team, "q", testAgents, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "before", got[0].Content)

	select {
	case <-team.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("team producer was not released")
	}
}

func TestRunFallsBackToFirstAgent(t *testing.T) {
	team := &scriptedTeam{events: []Event{
		TextMessage{Source: "someone_else", Content: "unmatched"},
		TextMessage{Source: "agent", Content: "generic"},
	}}

	got := Run(context.Background(), team, "q", testAgents, nil)
	require.Len(t, got, 2)
	assert.Equal(t, uint(7), got[0].AgentID)
	assert.Equal(t, "someone_else", got[0].Source)
	assert.Equal(t, uint(7), got[1].AgentID)
}

func TestRunWithoutAgentsDropsUnattributedMessages(t *testing.T) {
	team := &scriptedTeam{events: []Event{
		TextMessage{Source: "someone_else", Content: "unmatched"},
	}}

	got := Run(context.Background(), team, "q", nil, nil)
	assert.Empty(t, got)
}

func TestRunApologisesWhenNothingWasProduced(t *testing.T) {
	var streamed []Response
	onMessage := func(r Response) { streamed = append(streamed, r) }
	apology := Response{AgentID: 7, Source: "agent", Content: ApologyMessage}

	got := Run(context.Background(), nil, "q", testAgents, onMessage)
	assert.Equal(t, []Response{apology}, got)

	silent := &scriptedTeam{events: []Event{
		TextMessage{Source: "user", Content: "q"},
		TaskResult{},
	}}
	got = Run(context.Background(), silent, "q", testAgents, onMessage)
	assert.Equal(t, []Response{apology}, got)
	assert.Len(t, streamed, 2)

	assert.Empty(t, Run(context.Background(), nil, "q", nil, nil))
}

func TestRunWithRoundRobinTeam(t *testing.T) {
	a := &stubParticipant{name: "writer", id: 9, replies: []string{"a poem"}}
	team, err := NewRoundRobinTeam([]Participant{a, NewUserProxy()}, DefaultTermination(), nil)
	require.NoError(t, err)

	got := Run(context.Background(), team, "write", testAgents, nil)
	assert.Equal(t, []Response{{AgentID: 9, Source: "writer", Content: "a poem"}}, got)
}

func TestRunStopsAtTerminateOnThirdMessage(t *testing.T) {
	a := &stubParticipant{name: "writer", id: 9, replies: []string{"draft", "final TERMINATE", "never sent"}}
	team, err := NewRoundRobinTeam([]Participant{a}, DefaultTermination(), nil)
	require.NoError(t, err)

	var streamed []Response
	got := Run(context.Background(), team, "write", testAgents, func(r Response) {
		streamed = append(streamed, r)
	})

	// the task is message 1, so the agent speaks twice
	want := []Response{
		{AgentID: 9, Source: "writer", Content: "draft"},
		{AgentID: 9, Source: "writer", Content: "final TERMINATE"},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, streamed)
	assert.Equal(t, 2, a.turn)
}
