package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore records revoked session ids until their tokens expire.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

const revokedKeyPrefix = "session:revoked:"

type redisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore keeps revocations in Redis so every API instance
// sees them. A nil client falls back to NewMemorySessionStore.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return NewMemorySessionStore()
	}
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedKeyPrefix+sessionID, 1, ttl).Err()
}

func (s *redisSessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemorySessionStore keeps revocations in process memory. Revocations are
// lost on restart and not shared between instances.
type MemorySessionStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemorySessionStore returns an empty in-process store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{revoked: map[string]time.Time{}, now: time.Now}
}

// Revoke marks sessionID revoked for ttl. Expired entries are dropped here.
func (s *MemorySessionStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
		}
	}
	s.revoked[sessionID] = now.Add(ttl)
	return nil
}

func (s *MemorySessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[sessionID]
	return ok && s.now().Before(until), nil
}
