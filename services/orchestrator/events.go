// Package orchestrator turns a user message into an ordered run of agent replies.
package orchestrator

// Event is anything a team run emits on its stream
type Event interface {
	event()
}

// TextMessage is one chat message. Source is the participant name that produced it.
type TextMessage struct {
	Source  string
	Content string
}

// UserInputRequested is emitted when the run hands the turn back to the human
type UserInputRequested struct {
	Source string
}

// TaskResult is the final event of every run
type TaskResult struct {
	Messages   []TextMessage
	StopReason string
}

func (TextMessage) event()        {}
func (UserInputRequested) event() {}
func (TaskResult) event()         {}
