package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxConcurrentRequests is the number of in-flight external calls a workspace may hold.
const MaxConcurrentRequests = 10

// Limiter hands out per-workspace concurrency slots. It is advisory:
// correctness of sends lives in the durable queue, not here.
type Limiter interface {
	Acquire(ctx context.Context, workspaceID string) (bool, error)
	Release(ctx context.Context, workspaceID string) error
	Current(ctx context.Context, workspaceID string) (int, error)
}

// MemoryLimiter keeps counters in process memory and resets on restart.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
}

func NewMemoryLimiter(max int) *MemoryLimiter {
	if max <= 0 {
		max = MaxConcurrentRequests
	}
	return &MemoryLimiter{max: max, counts: map[string]int{}}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, workspaceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[workspaceID] >= l.max {
		return false, nil
	}
	l.counts[workspaceID]++
	return true, nil
}

func (l *MemoryLimiter) Release(ctx context.Context, workspaceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[workspaceID] <= 1 {
		delete(l.counts, workspaceID)
		return nil
	}
	l.counts[workspaceID]--
	return nil
}

func (l *MemoryLimiter) Current(ctx context.Context, workspaceID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[workspaceID], nil
}

// Slot counters expire so a crashed process cannot pin a workspace forever.
const acquireLuaScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
    return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
return 1
`

const releaseLuaScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 1 then
    redis.call("DEL", KEYS[1])
    return 0
end
return redis.call("DECR", KEYS[1])
`

// RedisLimiter shares slots across worker processes.
type RedisLimiter struct {
	client        *redis.Client
	max           int
	ttl           time.Duration
	acquireScript *redis.Script
	releaseScript *redis.Script
}

func NewRedisLimiter(client *redis.Client, max int, ttl time.Duration) *RedisLimiter {
	if max <= 0 {
		max = MaxConcurrentRequests
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLimiter{
		client:        client,
		max:           max,
		ttl:           ttl,
		acquireScript: redis.NewScript(acquireLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

func (l *RedisLimiter) key(workspaceID string) string {
	return fmt.Sprintf("ratelimit:concurrency:%s", workspaceID)
}

func (l *RedisLimiter) Acquire(ctx context.Context, workspaceID string) (bool, error) {
	res, err := l.acquireScript.Run(ctx, l.client, []string{l.key(workspaceID)}, l.max, int(l.ttl.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("acquire slot for %s: %w", workspaceID, err)
	}
	return res == 1, nil
}

func (l *RedisLimiter) Release(ctx context.Context, workspaceID string) error {
	if err := l.releaseScript.Run(ctx, l.client, []string{l.key(workspaceID)}).Err(); err != nil {
		return fmt.Errorf("release slot for %s: %w", workspaceID, err)
	}
	return nil
}

func (l *RedisLimiter) Current(ctx context.Context, workspaceID string) (int, error) {
	n, err := l.client.Get(ctx, l.key(workspaceID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
