package broadcast

import (
	"context"

	"github.com/agentsphere/agentsphere-api/utils/cache"
	"go.uber.org/zap"
)

// RedisGroup uses Redis pub/sub so every API process sees every publish
type RedisGroup struct {
	cache  *cache.RedisCache
	buffer int
	logger *zap.Logger
}

func NewRedisGroup(c *cache.RedisCache, logger *zap.Logger) *RedisGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGroup{cache: c, buffer: DefaultBuffer, logger: logger}
}

func (g *RedisGroup) Join(ctx context.Context, name string) (*Subscription, error) {
	ps, err := g.cache.Subscribe(ctx, name)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, g.buffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				g.logger.Warn("Dropping broadcast for slow subscriber", zap.String("group", name))
			}
		}
	}()

	return newSubscription(out, func() {
		if err := ps.Close(); err != nil {
			g.logger.Debug("Failed to close redis subscription", zap.String("group", name), zap.Error(err))
		}
	}), nil
}

func (g *RedisGroup) Publish(ctx context.Context, name string, payload []byte) error {
	return g.cache.Publish(ctx, name, payload)
}

// Close is a no-op; the redis client is owned by the caller
func (g *RedisGroup) Close() error { return nil }
