package repositories

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pairview/internal/core/ports"
	"pairview/internal/infrastructure/repositories/memory"
	redisrepo "pairview/internal/infrastructure/repositories/redis"
	"pairview/pkg/config"
)

// RepositoryFactory creates repositories with memory fallback when Redis is
// unavailable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory room store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis room store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory room store")
	}

	return factory, nil
}

// CreateRoomStore creates the room registry backend.
func (f *RepositoryFactory) CreateRoomStore() ports.RoomStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRoomStore(f.redisClient, f.logger)
	}
	return memory.NewRoomStore()
}

// CreateSessionRepository creates the session record store. Session records
// are pushed in by the external scheduler over HTTP, so the in-memory store
// is the only implementation the coordinator ships.
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	return memory.NewSessionRepository()
}

// Close releases backend connections.
func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}
