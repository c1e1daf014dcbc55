// Package cache keeps each owner's task list in Redis using the cache-aside pattern.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	domain "github.com/example/task-tracker/domain/task"
	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values in Redis under a common prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  *Stats
}

// Stats tracks cache statistics.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Deletes uint64
	Errors  uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Deletes   uint64  `json:"deletes"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
}

// New creates a new cache instance.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		stats:  &Stats{},
	}
}

// Get decodes the value at key into dest. The boolean reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache unmarshal error: %w", err)
	}

	atomic.AddUint64(&c.stats.Hits, 1)
	return true, nil
}

// GetStats returns the current cache statistics.
func (c *Cache) GetStats() StatsSnapshot {
	hits := atomic.LoadUint64(&c.stats.Hits)
	misses := atomic.LoadUint64(&c.stats.Misses)
	totalGets := hits + misses

	var hitRate float64
	if totalGets > 0 {
		hitRate = float64(hits) / float64(totalGets) * 100
	}

	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      atomic.LoadUint64(&c.stats.Sets),
		Deletes:   atomic.LoadUint64(&c.stats.Deletes),
		Errors:    atomic.LoadUint64(&c.stats.Errors),
		HitRate:   hitRate,
		TotalGets: totalGets,
	}
}

// Ping checks if the Redis connection is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// TaskLists caches the ordered task list of each owner. Every invalidation
// bumps a per-owner generation; a list is stored only if the generation it
// was read under is still current, so a read racing a write never puts the
// pre-write list back.
type TaskLists struct {
	cache *Cache
}

// NewTaskLists wraps c for per-owner task lists.
func NewTaskLists(c *Cache) *TaskLists {
	return &TaskLists{cache: c}
}

func listKey(ownerID string) string {
	return "list:" + ownerID
}

func generationKey(ownerID string) string {
	return "gen:" + ownerID
}

// setIfGeneration stores ARGV[2] at KEYS[2] only while KEYS[1] equals ARGV[1].
// A missing generation counts as 0. ARGV[3] is the TTL in milliseconds.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// GetList returns the cached list for ownerID, if any.
func (l *TaskLists) GetList(ctx context.Context, ownerID string) ([]domain.Task, bool, error) {
	var tasks []domain.Task
	found, err := l.cache.Get(ctx, listKey(ownerID), &tasks)
	if err != nil || !found {
		return nil, false, err
	}
	return tasks, true, nil
}

// Generation returns the current invalidation generation for ownerID.
func (l *TaskLists) Generation(ctx context.Context, ownerID string) (int64, error) {
	gen, err := l.cache.client.Get(ctx, l.cache.prefix+generationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		atomic.AddUint64(&l.cache.stats.Errors, 1)
		return 0, fmt.Errorf("cache generation error: %w", err)
	}
	return gen, nil
}

// SetList stores the list for ownerID if gen is still the current
// generation. The boolean reports whether the list was stored.
func (l *TaskLists) SetList(ctx context.Context, ownerID string, gen int64, tasks []domain.Task) (bool, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		atomic.AddUint64(&l.cache.stats.Errors, 1)
		return false, fmt.Errorf("cache marshal error: %w", err)
	}

	keys := []string{l.cache.prefix + generationKey(ownerID), l.cache.prefix + listKey(ownerID)}
	stored, err := setIfGeneration.Run(ctx, l.cache.client, keys,
		strconv.FormatInt(gen, 10), data, l.cache.ttl.Milliseconds()).Int64()
	if err != nil {
		atomic.AddUint64(&l.cache.stats.Errors, 1)
		return false, fmt.Errorf("cache set error: %w", err)
	}
	if stored == 0 {
		return false, nil
	}

	atomic.AddUint64(&l.cache.stats.Sets, 1)
	return true, nil
}

// Invalidate bumps the generation for ownerID and drops its cached list.
func (l *TaskLists) Invalidate(ctx context.Context, ownerID string) error {
	genKey := l.cache.prefix + generationKey(ownerID)
	_, err := l.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		if l.cache.ttl > 0 {
			pipe.PExpire(ctx, genKey, 2*l.cache.ttl)
		}
		pipe.Del(ctx, l.cache.prefix+listKey(ownerID))
		return nil
	})
	if err != nil {
		atomic.AddUint64(&l.cache.stats.Errors, 1)
		return fmt.Errorf("cache invalidate error: %w", err)
	}

	atomic.AddUint64(&l.cache.stats.Deletes, 1)
	return nil
}
