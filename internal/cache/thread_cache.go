// Package cache keeps encoded thread snapshots in Redis between polls.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/thread"
)

// Snapshot is a ticket's thread as read at StoredSeq, the highest message
// row seq at read time (0 when the ticket had no rows). A snapshot is only
// valid while the store's last seq still equals StoredSeq.
type Snapshot struct {
	StoredSeq int
	Messages  []domain.Message
}

// ThreadCache stores thread snapshots. Misses and backend failures look the
// same to callers.
type ThreadCache interface {
	Get(ctx context.Context, ticketID string) (Snapshot, bool)
	Set(ctx context.Context, ticketID string, snap Snapshot)
	Invalidate(ctx context.Context, ticketID string)
}

type cachedSnapshot struct {
	StoredSeq int             `json:"stored_seq"`
	Messages  json.RawMessage `json:"messages"`
}

type redisThreadCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisThreadCache returns a Redis-backed cache, or a no-op cache when
// client is nil or ttl is not positive.
func NewRedisThreadCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) ThreadCache {
	if client == nil || ttl <= 0 {
		return Noop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisThreadCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *redisThreadCache) key(ticketID string) string {
	return c.prefix + ticketID
}

func (c *redisThreadCache) Get(ctx context.Context, ticketID string) (Snapshot, bool) {
	raw, err := c.client.Get(ctx, c.key(ticketID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("thread cache read failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
		return Snapshot{}, false
	}

	var cached cachedSnapshot
	if err := json.Unmarshal(raw, &cached); err != nil || cached.StoredSeq < 0 {
		return Snapshot{}, false
	}
	msgs, err := thread.Decode(cached.Messages)
	if err != nil || len(msgs) == 0 {
		return Snapshot{}, false
	}
	for i := range msgs {
		msgs[i].TicketID = ticketID
	}
	return Snapshot{StoredSeq: cached.StoredSeq, Messages: msgs}, true
}

func (c *redisThreadCache) Set(ctx context.Context, ticketID string, snap Snapshot) {
	msgs, err := thread.Encode(snap.Messages)
	if err != nil {
		return
	}
	raw, err := json.Marshal(cachedSnapshot{StoredSeq: snap.StoredSeq, Messages: msgs})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(ticketID), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("thread cache write failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (c *redisThreadCache) Invalidate(ctx context.Context, ticketID string) {
	if err := c.client.Del(ctx, c.key(ticketID)).Err(); err != nil {
		c.logger.Warn("thread cache invalidation failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

type noopCache struct{}

// Noop returns a cache that never holds anything.
func Noop() ThreadCache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (Snapshot, bool) { return Snapshot{}, false }

func (noopCache) Set(context.Context, string, Snapshot) {}

func (noopCache) Invalidate(context.Context, string) {}
