package gamification

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/laxlab/drill-rewards/internal/config"
	"github.com/laxlab/drill-rewards/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestMemoryResultCacheExpires(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	c := NewMemoryResultCache(time.Minute)
	c.now = func() time.Time { return clock }

	c.Set(ctx, 1, "k", &models.WorkoutAwardResponse{CompletionID: "first"})
	c.Set(ctx, 1, "k", &models.WorkoutAwardResponse{CompletionID: "second"})

	got, ok := c.Get(ctx, 1, "k")
	if !ok || got.CompletionID != "first" {
		t.Fatalf("Get() = %+v, %v, want first stored result", got, ok)
	}
	if _, ok := c.Get(ctx, 2, "k"); ok {
		t.Error("Get() hit for a different user")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, 1, "k"); ok {
		t.Error("Get() hit after ttl")
	}
}

func TestNewResultCacheWithoutRedis(t *testing.T) {
	c := NewResultCache(config.RedisConfig{}, zap.NewNop())
	if _, ok := c.(*MemoryResultCache); !ok {
		t.Errorf("NewResultCache() = %T, want *MemoryResultCache", c)
	}

	unreachable := NewResultCache(config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	if _, ok := unreachable.(*MemoryResultCache); !ok {
		t.Errorf("NewResultCache(unreachable) = %T, want *MemoryResultCache", unreachable)
	}
}

func TestRedisResultCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewRedisResultCache(client, time.Minute, zap.NewNop())
	defer c.Close()

	key := "test-" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, resultCacheKey(1, key))

	if _, ok := c.Get(ctx, 1, key); ok {
		t.Fatal("Get() hit before Set")
	}
	c.Set(ctx, 1, key, &models.WorkoutAwardResponse{CompletionID: "first", TotalPoints: 11})
	c.Set(ctx, 1, key, &models.WorkoutAwardResponse{CompletionID: "second"})

	got, ok := c.Get(ctx, 1, key)
	if !ok || got.CompletionID != "first" || got.TotalPoints != 11 {
		t.Errorf("Get() = %+v, %v, want first stored result", got, ok)
	}
}
