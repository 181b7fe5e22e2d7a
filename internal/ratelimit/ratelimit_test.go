package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trustlend/trustlend/internal/config"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "k", 2, time.Minute, now)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v %v", i, res, err)
		}
	}
	res, _ := l.Allow(ctx, "k", 2, time.Minute, now.Add(30*time.Second))
	if res.Allowed {
		t.Fatalf("expected third request in window to be limited")
	}
	if !res.Reset.Equal(time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset %s", res.Reset)
	}
	res, _ = l.Allow(ctx, "k", 2, time.Minute, now.Add(time.Minute))
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected new window to allow, got %+v", res)
	}
	if res, _ = l.Allow(ctx, "other", 2, time.Minute, now); !res.Allowed {
		t.Fatalf("expected keys to be independent")
	}
}

func TestMemoryLimiter_EvictsStaleWindows(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)

	for id := 0; id < 50; id++ {
		if _, err := l.Allow(ctx, Key(uint64(id), RouteAnalysis), 5, time.Minute, now); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if got := len(l.counters); got != 50 {
		t.Fatalf("expected 50 counters, got %d", got)
	}

	res, _ := l.Allow(ctx, Key(1, RouteAnalysis), 5, time.Minute, now.Add(2*time.Minute))
	if !res.Allowed || res.Remaining != 4 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
	if got := len(l.counters); got != 1 {
		t.Fatalf("expected stale counters to be evicted, %d left", got)
	}
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(config.RateLimitConfig{}, nil, nil)
	for i := 0; i < 100; i++ {
		if res, _ := m.Allow(context.Background(), "k"); !res.Allowed {
			t.Fatalf("expected disabled limiter to allow")
		}
	}
}

func TestManager_RedisFailureFallsBackToMemory(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	factoryCalls := 0
	factory := func(options *redis.Options) *redis.Client {
		factoryCalls++
		options.Addr = "127.0.0.1:1"
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	m := NewManager(config.RateLimitConfig{
		PerWindow:    1,
		Window:       time.Minute,
		RedisEnabled: true,
		RedisAddr:    "unreachable:6379",
	}, func() time.Time { return now }, factory)

	res, err := m.Allow(context.Background(), Key(1, RouteAnalysis))
	if err != nil || !res.Allowed {
		t.Fatalf("expected memory fallback to allow, got %+v %v", res, err)
	}
	res, _ = m.Allow(context.Background(), Key(1, RouteAnalysis))
	if res.Allowed {
		t.Fatalf("expected memory fallback to limit")
	}
	if factoryCalls != 1 {
		t.Fatalf("expected breaker to skip redis retries, got %d dials", factoryCalls)
	}
}

func TestKey(t *testing.T) {
	if got := Key(7, RouteVision); got != "u:7:vision" {
		t.Fatalf("unexpected key %q", got)
	}
	if Key(0, RouteVision) != "" {
		t.Fatalf("expected empty key for anonymous user")
	}
}
