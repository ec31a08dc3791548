package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/laxlab/drill-rewards/internal/config"
	"github.com/laxlab/drill-rewards/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResultCache short-circuits idempotent replays before they reach the store.
// It is a hint only: a miss always falls through to the stored result.
type ResultCache interface {
	Get(ctx context.Context, userID int64, key string) (*models.WorkoutAwardResponse, bool)
	Set(ctx context.Context, userID int64, key string, resp *models.WorkoutAwardResponse)
}

func resultCacheKey(userID int64, key string) string {
	return "award:result:" + strconv.FormatInt(userID, 10) + ":" + key
}

// NewResultCache prefers Redis and falls back to process memory when no
// address is configured or Redis is unreachable at startup.
func NewResultCache(cfg config.RedisConfig, log *zap.Logger) ResultCache {
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	mem := NewMemoryResultCache(ttl)
	if cfg.Addr == "" {
		log.Info("result cache using process memory")
		return mem
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, result cache using process memory", zap.String("addr", cfg.Addr), zap.Error(err))
		rc.Close()
		return mem
	}

	log.Info("result cache using redis", zap.String("addr", cfg.Addr))
	return &RedisResultCache{client: rc, ttl: ttl, fallback: mem, log: log}
}

// ── Redis ───────────────────────────────────────────────

type RedisResultCache struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryResultCache
	log      *zap.Logger
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl, fallback: NewMemoryResultCache(ttl), log: log}
}

func (c *RedisResultCache) Get(ctx context.Context, userID int64, key string) (*models.WorkoutAwardResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, resultCacheKey(userID, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("result cache get failed", zap.Error(err))
			return c.fallback.Get(ctx, userID, key)
		}
		return nil, false
	}

	var resp models.WorkoutAwardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (c *RedisResultCache) Set(ctx context.Context, userID int64, key string, resp *models.WorkoutAwardResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// SetNX keeps the first stored result authoritative.
	if err := c.client.SetNX(ctx, resultCacheKey(userID, key), raw, c.ttl).Err(); err != nil {
		c.log.Debug("result cache set failed", zap.Error(err))
		c.fallback.Set(ctx, userID, key, resp)
	}
}

func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

// ── Process Memory ──────────────────────────────────────

type cachedResult struct {
	resp      models.WorkoutAwardResponse
	expiresAt time.Time
}

type MemoryResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResult
	now     func() time.Time
}

func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{ttl: ttl, entries: make(map[string]cachedResult), now: time.Now}
}

func (c *MemoryResultCache) Get(_ context.Context, userID int64, key string) (*models.WorkoutAwardResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := resultCacheKey(userID, key)
	entry, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, k)
		return nil, false
	}
	resp := entry.resp
	return &resp, true
}

func (c *MemoryResultCache) Set(_ context.Context, userID int64, key string, resp *models.WorkoutAwardResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := resultCacheKey(userID, key)
	if entry, ok := c.entries[k]; ok && c.now().Before(entry.expiresAt) {
		return
	}
	c.entries[k] = cachedResult{resp: *resp, expiresAt: c.now().Add(c.ttl)}
}
