package persistence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/cache"
	"github.com/librosfab/support-service/internal/config"
)

const redisConnectTimeout = 2 * time.Second

// Redis holds the optional Redis client. A zero value means Redis is not
// configured; the session store and thread cache it hands out are then
// no-ops.
type Redis struct {
	Client *redis.Client
	logger *zap.Logger
}

// NewRedis builds a client when an address is configured. An unreachable
// server is logged but not fatal: revocation checks fail open and the
// thread cache misses until it comes back.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Info("REDIS_ADDR empty; running without redis")
		return &Redis{logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &Redis{Client: client, logger: logger}
}

// Enabled reports whether a client is configured.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Sessions returns the session revocation store. Without Redis,
// revocations are kept in process memory.
func (r *Redis) Sessions() auth.SessionStore {
	if !r.Enabled() {
		return auth.NewMemorySessionStore()
	}
	return auth.NewRedisSessionStore(r.Client)
}

// ThreadCache returns the thread snapshot cache configured by cfg.
func (r *Redis) ThreadCache(cfg config.ChatConfig) cache.ThreadCache {
	if !r.Enabled() || cfg.ThreadCacheTTL <= 0 {
		return cache.Noop()
	}
	return cache.NewRedisThreadCache(r.Client, cfg.ThreadCacheKeyPrefix, cfg.ThreadCacheTTL, r.logger)
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis client not configured")
	}
	return errors.Wrap(r.Client.Ping(ctx).Err(), "ping redis")
}
