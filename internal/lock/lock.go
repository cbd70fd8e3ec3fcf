package lock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock serializes work on one key across worker processes.
// A Lock instance is not meant to be shared between goroutines.
type Lock interface {
	// Acquire returns false without blocking when another holder owns the key.
	Acquire(ctx context.Context) (bool, error)
	// Refresh renews an expiring hold. False means the hold was lost.
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Provider builds a fresh Lock for a key.
type Provider interface {
	For(key string) Lock
}

// NewProvider prefers Redis, then Postgres advisory locks, then process-local locks.
func NewProvider(client *redis.Client, db *sql.DB, ttl time.Duration) Provider {
	switch {
	case client != nil:
		return &redisProvider{client: client, ttl: ttl}
	case db != nil:
		return &pgProvider{db: db}
	default:
		return NewMemoryProvider()
	}
}

// ====================== Redis ======================

const releaseLuaScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

const refreshLuaScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`

var (
	releaseScript = redis.NewScript(releaseLuaScript)
	refreshScript = redis.NewScript(refreshLuaScript)
)

// RedisLock uses SET NX with a random owner value so only the owner can release.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock %s: %w", l.key, err)
	}
	return n == 1, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

type redisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

func (p *redisProvider) For(key string) Lock { return NewRedisLock(p.client, key, p.ttl) }

// ====================== Postgres ======================

// PGAdvisoryLock holds a session-scoped advisory lock on a dedicated
// connection, so unlock runs on the same session that locked.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Refresh pings the holding session; the lock lives as long as it does.
func (l *PGAdvisoryLock) Refresh(ctx context.Context) (bool, error) {
	if l.conn == nil {
		return false, nil
	}
	if err := l.conn.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

type pgProvider struct{ db *sql.DB }

func (p *pgProvider) For(key string) Lock { return NewPGAdvisoryLock(p.db, key) }

// ====================== Memory ======================

// MemoryProvider locks within a single process. Used by tests and STORE=memory.
type MemoryProvider struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{held: map[string]bool{}}
}

func (p *MemoryProvider) For(key string) Lock { return &memoryLock{p: p, key: key} }

type memoryLock struct {
	p     *MemoryProvider
	key   string
	owned bool
}

func (l *memoryLock) Acquire(ctx context.Context) (bool, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if l.p.held[l.key] {
		return false, nil
	}
	l.p.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *memoryLock) Refresh(ctx context.Context) (bool, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	return l.owned && l.p.held[l.key], nil
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if l.owned {
		delete(l.p.held, l.key)
		l.owned = false
	}
	return nil
}

var (
	_ Lock = (*RedisLock)(nil)
	_ Lock = (*PGAdvisoryLock)(nil)
	_ Lock = (*memoryLock)(nil)
)
