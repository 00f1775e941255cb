package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type subscriber struct {
	ch chan []byte
}

// Hub is the in-process group backend. The redis and postgres backends feed it too.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*subscriber]struct{}
	buffer int
	closed bool
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{groups: make(map[string]map[*subscriber]struct{}), buffer: buffer, logger: logger}
}

func (h *Hub) Join(_ context.Context, name string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	members, ok := h.groups[name]
	if !ok {
		members = make(map[*subscriber]struct{})
		h.groups[name] = members
	}
	members[sub] = struct{}{}

	return newSubscription(sub.ch, func() { h.leave(name, sub) }), nil
}

func (h *Hub) leave(name string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[name]
	if !ok {
		return
	}
	if _, ok := members[sub]; !ok {
		return
	}
	delete(members, sub)
	close(sub.ch)
	if len(members) == 0 {
		delete(h.groups, name)
	}
}

func (h *Hub) Publish(_ context.Context, name string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	h.deliverLocked(name, payload)
	return nil
}

// deliver hands payload to local members only
func (h *Hub) deliver(name string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(name, payload)
}

func (h *Hub) deliverLocked(name string, payload []byte) {
	for sub := range h.groups[name] {
		select {
		case sub.ch <- payload:
		default:
			h.logger.Warn("Dropping broadcast for slow subscriber", zap.String("group", name))
		}
	}
}

// Members returns how many subscriptions a group currently has
func (h *Hub) Members(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[name])
}

// Close ends every subscription
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for name, members := range h.groups {
		for sub := range members {
			close(sub.ch)
		}
		delete(h.groups, name)
	}
	return nil
}
