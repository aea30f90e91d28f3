package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// InvocationLock enforces at-most-one concurrent invocation per
// (dialogue_id, tool_id, parameter-hash). Acquire returns false when
// another invocation with the same key is already in flight.
type InvocationLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ParameterHash produces a stable, order-independent digest of a parameter
// map for use in the lock key.
func ParameterHash(parameters map[string]any) string {
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(parameters))
	for _, k := range keys {
		ordered[k] = parameters[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// memoryLock is the single-process fallback used when TOOL_LOCK_REDIS_URL
// is unset.
type memoryLock struct {
	mu      sync.Mutex
	holders map[string]time.Time
}

func NewMemoryLock() InvocationLock {
	return &memoryLock{holders: make(map[string]time.Time)}
}

func (l *memoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, held := l.holders[key]; held && time.Now().Before(until) {
		return false, nil
	}
	l.holders[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *memoryLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holders, key)
	return nil
}

// redisLock backs the guard with SETNX so the constraint holds across
// process restarts and (should this ever run more than one replica) across
// instances sharing the same Redis.
type redisLock struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewRedisLock(addr string, log *logger.Logger) (InvocationLock, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisLock{rdb: rdb, log: log.With("component", "ToolInvokerLock")}, nil
}

func (l *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, "tool-lock:"+key, 1, ttl).Result()
}

func (l *redisLock) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, "tool-lock:"+key).Err()
}
