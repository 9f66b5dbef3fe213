package analytics

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

type Counters interface {
	Incr(ctx context.Context, event string) error
	All(ctx context.Context) (map[string]int64, error)
}

const countersKey = "analytics:counters"

// RedisCounters keeps one hash field per event name so increments from
// several analytics replicas add up.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (c *RedisCounters) Incr(ctx context.Context, event string) error {
	return c.client.HIncrBy(ctx, countersKey, event, 1).Err()
}

func (c *RedisCounters) All(ctx context.Context) (map[string]int64, error) {
	fields, err := c.client.HGetAll(ctx, countersKey).Result()
	if err != nil {
		return nil, err
	}

	counters := make(map[string]int64, len(fields))
	for event, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		counters[event] = n
	}
	return counters, nil
}

func (c *RedisCounters) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// MemoryCounters is used when no redis is configured.
type MemoryCounters struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counters: make(map[string]int64)}
}

func (c *MemoryCounters) Incr(_ context.Context, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[event]++
	return nil
}

func (c *MemoryCounters) All(context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out, nil
}
