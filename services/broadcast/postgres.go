package broadcast

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute

	// PostgreSQL rejects NOTIFY payloads of 8000 bytes or more
	maxNotifyPayload   = 8000 - 1
	payloadRefPrefix   = "ref:"
	payloadLoadTimeout = 5 * time.Second
)

// PostgresGroup uses LISTEN/NOTIFY. Channels are listened to while at least
// one local subscriber is joined; notifications fan out through a local hub.
type PostgresGroup struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *Hub
	logger   *zap.Logger

	mu        sync.Mutex
	listening map[string]int
	done      chan struct{}
}

func NewPostgresGroup(dsn string, db *sql.DB, logger *zap.Logger) *PostgresGroup {
	if logger == nil {
		logger = zap.NewNop()
	}

	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})

	g := &PostgresGroup{
		db:        db,
		listener:  listener,
		hub:       NewHub(DefaultBuffer, logger),
		logger:    logger,
		listening: make(map[string]int),
		done:      make(chan struct{}),
	}
	go g.forward()
	return g
}

func (g *PostgresGroup) forward() {
	for {
		select {
		case n, ok := <-g.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect
			if n == nil {
				continue
			}
			payload, err := g.resolve(n.Extra)
			if err != nil {
				g.logger.Warn("Failed to load broadcast payload", zap.String("group", n.Channel), zap.Error(err))
				continue
			}
			g.hub.deliver(n.Channel, payload)
		case <-time.After(90 * time.Second):
			go func() {
				if err := g.listener.Ping(); err != nil {
					g.logger.Debug("Postgres listener ping failed", zap.Error(err))
				}
			}()
		case <-g.done:
			return
		}
	}
}

func (g *PostgresGroup) Join(ctx context.Context, name string) (*Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listening[name] == 0 {
		if err := g.listener.Listen(name); err != nil && err != pq.ErrChannelAlreadyOpen {
			return nil, fmt.Errorf("listen %s: %w", name, err)
		}
	}

	sub, err := g.hub.Join(ctx, name)
	if err != nil {
		return nil, err
	}
	g.listening[name]++

	return newSubscription(sub.Messages(), func() {
		sub.Close()
		g.release(name)
	}), nil
}

func (g *PostgresGroup) release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listening[name]--
	if g.listening[name] > 0 {
		return
	}
	delete(g.listening, name)
	if err := g.listener.Unlisten(name); err != nil && err != pq.ErrChannelNotOpen {
		g.logger.Debug("Failed to unlisten", zap.String("group", name), zap.Error(err))
	}
}

// Publish notifies the channel. Payloads over the NOTIFY limit are stored in
// broadcast_payloads and only their id is sent.
func (g *PostgresGroup) Publish(ctx context.Context, name string, payload []byte) error {
	extra := string(payload)
	if len(payload) > maxNotifyPayload {
		var id uint64
		err := g.db.QueryRowContext(ctx,
			"INSERT INTO broadcast_payloads (channel, payload, created_at) VALUES ($1, $2, $3) RETURNING id",
			name, extra, time.Now(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("store broadcast payload: %w", err)
		}
		extra = payloadRef(id)
	}

	if _, err := g.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", name, extra); err != nil {
		return fmt.Errorf("notify %s: %w", name, err)
	}
	return nil
}

// resolve turns a notification payload back into the published bytes
func (g *PostgresGroup) resolve(extra string) ([]byte, error) {
	id, ok := parsePayloadRef(extra)
	if !ok {
		return []byte(extra), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), payloadLoadTimeout)
	defer cancel()

	var payload string
	if err := g.db.QueryRowContext(ctx, "SELECT payload FROM broadcast_payloads WHERE id = $1", id).Scan(&payload); err != nil {
		return nil, fmt.Errorf("payload %d: %w", id, err)
	}
	return []byte(payload), nil
}

func payloadRef(id uint64) string {
	return payloadRefPrefix + strconv.FormatUint(id, 10)
}

// parsePayloadRef reports whether extra is a stored payload reference.
// Envelopes are JSON objects so they never carry the prefix.
func parsePayloadRef(extra string) (uint64, bool) {
	rest, ok := strings.CutPrefix(extra, payloadRefPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (g *PostgresGroup) Close() error {
	close(g.done)
	_ = g.hub.Close()
	return g.listener.Close()
}
