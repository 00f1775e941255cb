package broadcast

import (
	"database/sql"
	"fmt"

	"github.com/agentsphere/agentsphere-api/utils/cache"
	"go.uber.org/zap"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Dependencies are the connections a backend may need
type Dependencies struct {
	Redis       *cache.RedisCache
	PostgresDSN string
	DB          *sql.DB
}

// New picks the backend by name. An empty name means redis when a client is
// available and memory otherwise.
func New(backend string, deps Dependencies, logger *zap.Logger) (Group, error) {
	if backend == "" {
		backend = BackendMemory
		if deps.Redis != nil {
			backend = BackendRedis
		}
	}

	switch backend {
	case BackendMemory:
		return NewHub(DefaultBuffer, logger), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("broadcast backend %q needs a redis connection", backend)
		}
		return NewRedisGroup(deps.Redis, logger), nil
	case BackendPostgres:
		if deps.DB == nil || deps.PostgresDSN == "" {
			return nil, fmt.Errorf("broadcast backend %q needs a database connection", backend)
		}
		return NewPostgresGroup(deps.PostgresDSN, deps.DB, logger), nil
	}
	return nil, fmt.Errorf("unknown broadcast backend %q", backend)
}
