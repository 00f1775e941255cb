package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrNoParticipants = errors.New("team needs at least one participant")

// Team runs a task to completion, streaming events in production order.
// The channel is closed after the TaskResult, or early when ctx is cancelled.
type Team interface {
	Run(ctx context.Context, task string) <-chan Event
	Participants() []Participant
}

// speakerFunc picks who talks next given the transcript so far
type speakerFunc func(ctx context.Context, transcript []TextMessage) (Participant, error)

type groupChat struct {
	participants []Participant
	termination  Termination
	logger       *zap.Logger
}

func newGroupChat(participants []Participant, termination Termination, logger *zap.Logger) (groupChat, error) {
	if len(participants) == 0 {
		return groupChat{}, ErrNoParticipants
	}
	if kept := AcceptParticipants(participants, nil); len(kept) != len(participants) {
		return groupChat{}, fmt.Errorf("%w or invalid participant names", ErrDuplicateName)
	}
	if termination == nil {
		termination = DefaultTermination()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return groupChat{participants: participants, termination: termination, logger: logger}, nil
}

func (g *groupChat) Participants() []Participant {
	return g.participants
}

func (g *groupChat) run(ctx context.Context, task string, next speakerFunc) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var transcript []TextMessage
		record := func(msg TextMessage) bool {
			transcript = append(transcript, msg)
			for _, p := range g.participants {
				p.Observe(msg)
			}
			return emit(msg)
		}

		if !record(TextMessage{Source: UserProxyName, Content: task}) {
			return
		}

		stopReason, done := g.termination.Check(transcript)
		for !done {
			speaker, err := next(ctx, transcript)
			if err != nil {
				stopReason = fmt.Sprintf("speaker selection failed: %v", err)
				g.logger.Warn("Team speaker selection failed", zap.Error(err))
				break
			}

			if isUserProxy(speaker) {
				if !emit(UserInputRequested{Source: speaker.Name()}) {
					return
				}
				stopReason = "user input requested"
				break
			}

			msg, err := speaker.Speak(ctx)
			if err != nil {
				stopReason = fmt.Sprintf("participant %s failed: %v", speaker.Name(), err)
				g.logger.Warn("Participant failed to respond", zap.String("participant", speaker.Name()), zap.Error(err))
				break
			}
			msg.Source = speaker.Name()

			if !record(msg) {
				return
			}
			stopReason, done = g.termination.Check(transcript)
		}

		emit(TaskResult{Messages: transcript, StopReason: stopReason})
	}()

	return events
}

// RoundRobinTeam lets participants speak in a fixed rotation
type RoundRobinTeam struct {
	groupChat
}

func NewRoundRobinTeam(participants []Participant, termination Termination, logger *zap.Logger) (*RoundRobinTeam, error) {
	gc, err := newGroupChat(participants, termination, logger)
	if err != nil {
		return nil, err
	}
	return &RoundRobinTeam{groupChat: gc}, nil
}

func (t *RoundRobinTeam) Run(ctx context.Context, task string) <-chan Event {
	turn := 0
	return t.run(ctx, task, func(context.Context, []TextMessage) (Participant, error) {
		p := t.participants[turn%len(t.participants)]
		turn++
		return p, nil
	})
}
