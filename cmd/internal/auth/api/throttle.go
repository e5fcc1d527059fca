package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle counts failed attempts per key inside a fixed window.
type Throttle interface {
	// Blocked reports whether any key reached the failure budget.
	Blocked(ctx context.Context, keys ...string) (bool, error)
	// Fail records one failure for every key.
	Fail(ctx context.Context, keys ...string) error
	// Reset forgets the keys, e.g. after a successful login.
	Reset(ctx context.Context, keys ...string) error
}

func throttleKeys(ip, name string) []string {
	keys := make([]string, 0, 2)
	if ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
		keys = append(keys, "name:"+n)
	}
	return keys
}

type window struct {
	count int
	until time.Time
}

// MemoryThrottle is a process-local Throttle.
type MemoryThrottle struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]window
}

// NewMemoryThrottle allows max failures per key within win.
func NewMemoryThrottle(max int, win time.Duration) *MemoryThrottle {
	return &MemoryThrottle{max: max, window: win, now: time.Now, entries: map[string]window{}}
}

func (t *MemoryThrottle) Blocked(_ context.Context, keys ...string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for _, k := range keys {
		if e, ok := t.entries[k]; ok && now.Before(e.until) && e.count >= t.max {
			return true, nil
		}
	}
	return false, nil
}

func (t *MemoryThrottle) Fail(_ context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for _, k := range keys {
		e := t.entries[k]
		if !now.Before(e.until) {
			e = window{until: now.Add(t.window)}
		}
		e.count++
		t.entries[k] = e
	}
	if len(t.entries) > 4096 {
		for k, e := range t.entries {
			if !now.Before(e.until) {
				delete(t.entries, k)
			}
		}
	}
	return nil
}

func (t *MemoryThrottle) Reset(_ context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		delete(t.entries, k)
	}
	return nil
}

// ErrThrottleUnavailable wraps Redis failures.
var ErrThrottleUnavailable = errors.New("throttle: backend unavailable")

const redisThrottlePrefix = "binhacken:throttle:"

// RedisThrottle shares failure counters between instances.
type RedisThrottle struct {
	rdb    redis.UniversalClient
	max    int
	window time.Duration
}

// NewRedisThrottle allows max failures per key within window.
func NewRedisThrottle(rdb redis.UniversalClient, max int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, max: max, window: window}
}

func (t *RedisThrottle) Blocked(ctx context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		n, err := t.rdb.Get(ctx, redisThrottlePrefix+k).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
		}
		if n >= int64(t.max) {
			return true, nil
		}
	}
	return false, nil
}

func (t *RedisThrottle) Fail(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		key := redisThrottlePrefix + k
		n, err := t.rdb.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
		}
		// Fixed window: the first failure starts the clock.
		if n == 1 {
			if err := t.rdb.Expire(ctx, key, t.window).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
			}
		}
	}
	return nil
}

func (t *RedisThrottle) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = redisThrottlePrefix + k
	}
	if err := t.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}
