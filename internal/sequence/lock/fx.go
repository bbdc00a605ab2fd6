package lock

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/erpcore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sequence.lock",
	fx.Provide(New),
)

// redisTTLFactor scales the lock TTL above the wait timeout so a live holder
// never loses its lock before waiters give up.
const redisTTLFactor = 6

// New selects the Locker for the configured backend.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if cfg.Sequence.LockBackend != config.LockBackendRedis {
		log.Info("sequence locks are in-process", zap.String("backend", config.LockBackendLocal))
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	ttl := time.Duration(cfg.Sequence.LockTimeoutMS) * time.Millisecond * redisTTLFactor
	log.Info("sequence locks are shared through redis", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", ttl))
	return NewRedisLocker(client, ttl, log)
}
