// Package broadcast fans session messages out to every connection watching a session.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// DefaultBuffer is how many payloads a slow subscriber may fall behind before drops
const DefaultBuffer = 64

var ErrClosed = errors.New("broadcast group is closed")

// Envelope is the payload pushed to session sockets
type Envelope struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

func (e Envelope) Bytes() []byte {
	b, _ := json.Marshal(e)
	return b
}

func ParseEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return e, nil
}

// Group delivers payloads published under a name to everyone who joined it
type Group interface {
	Join(ctx context.Context, name string) (*Subscription, error)
	Publish(ctx context.Context, name string, payload []byte) error
	Close() error
}

// Subscription is one member of a group. Messages is closed after Close.
type Subscription struct {
	ch    <-chan []byte
	leave func()
	once  sync.Once
}

func newSubscription(ch <-chan []byte, leave func()) *Subscription {
	return &Subscription{ch: ch, leave: leave}
}

func (s *Subscription) Messages() <-chan []byte {
	return s.ch
}

// Close leaves the group. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.leave)
}
