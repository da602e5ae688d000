package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/librosfab/support-service/internal/domain"
)

const (
	testPrefix = "thread:"
	testTTL    = 30 * time.Second
	ticketID   = "TK-2026-00007"
)

func newRedisCache(t *testing.T) (*miniredis.Miniredis, ThreadCache) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, NewRedisThreadCache(client, testPrefix, testTTL, zap.NewNop())
}

func sampleSnapshot() Snapshot {
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return Snapshot{
		StoredSeq: 2,
		Messages: []domain.Message{
			{TicketID: ticketID, Seq: 1, Author: domain.AuthorCustomer, Body: "Necesito 100 copias", CreatedAt: at},
			{TicketID: ticketID, Seq: 2, Author: domain.AuthorSupport, Body: "¿En qué formato?", CreatedAt: at.Add(time.Hour)},
		},
	}
}

func TestRedisThreadCacheStoresSnapshot(t *testing.T) {
	server, c := newRedisCache(t)
	ctx := context.Background()
	want := sampleSnapshot()

	c.Set(ctx, ticketID, want)
	if ttl := server.TTL(testPrefix + ticketID); ttl != testTTL {
		t.Fatalf("ttl = %s, want %s", ttl, testTTL)
	}

	got, ok := c.Get(ctx, ticketID)
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.StoredSeq != want.StoredSeq || len(got.Messages) != len(want.Messages) {
		t.Fatalf("snapshot = %+v", got)
	}
	for i, m := range want.Messages {
		g := got.Messages[i]
		if g.TicketID != ticketID || g.Seq != m.Seq || g.Author != m.Author || g.Body != m.Body || !g.CreatedAt.Equal(m.CreatedAt) {
			t.Fatalf("message %d = %+v, want %+v", i, g, m)
		}
	}

	server.FastForward(testTTL)
	if _, ok := c.Get(ctx, ticketID); ok {
		t.Fatal("snapshot survived its ttl")
	}
}

func TestRedisThreadCacheInvalidate(t *testing.T) {
	server, c := newRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, ticketID, sampleSnapshot())
	c.Invalidate(ctx, ticketID)
	if server.Exists(testPrefix + ticketID) {
		t.Fatal("key still present after invalidation")
	}
	if _, ok := c.Get(ctx, ticketID); ok {
		t.Fatal("hit after invalidation")
	}
	// invalidating a missing key is fine
	c.Invalidate(ctx, ticketID)
}

func TestRedisThreadCacheUnreadableValuesMiss(t *testing.T) {
	cases := map[string]string{
		"not json":         "hola",
		"legacy list":      `[{"autor":"cliente","mensaje":"hola"}]`,
		"scalar messages":  `{"stored_seq":1,"messages":"hola"}`,
		"no messages":      `{"stored_seq":1,"messages":[]}`,
		"negative seq":     `{"stored_seq":-1,"messages":[{"seq":1,"author":"customer","body":"hola"}]}`,
		"missing messages": `{"stored_seq":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			server, c := newRedisCache(t)
			if err := server.Set(testPrefix+ticketID, raw); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if snap, ok := c.Get(context.Background(), ticketID); ok {
				t.Fatalf("unexpected hit %+v", snap)
			}
		})
	}
}

func TestRedisThreadCacheBackendFailureIsMiss(t *testing.T) {
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := server.Addr()
	server.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewRedisThreadCache(client, testPrefix, testTTL, zap.New(core))
	ctx := context.Background()

	if _, ok := c.Get(ctx, ticketID); ok {
		t.Fatal("hit from an unreachable server")
	}
	c.Set(ctx, ticketID, sampleSnapshot())
	c.Invalidate(ctx, ticketID)

	if n := logs.FilterMessage("thread cache invalidation failed").Len(); n != 1 {
		t.Fatalf("invalidation failures logged = %d, want 1", n)
	}
	if n := logs.FilterMessage("thread cache read failed").Len(); n != 1 {
		t.Fatalf("read failures logged = %d, want 1", n)
	}
}

func TestNewRedisThreadCacheDisabled(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	for name, c := range map[string]ThreadCache{
		"nil client": NewRedisThreadCache(nil, testPrefix, testTTL, nil),
		"zero ttl":   NewRedisThreadCache(client, testPrefix, 0, nil),
	} {
		if _, ok := c.(noopCache); !ok {
			t.Fatalf("%s: got %T, want the no-op cache", name, c)
		}
	}
}
