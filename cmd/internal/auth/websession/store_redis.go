package websession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps states in Redis so they survive restarts and are shared
// between instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. The client is owned by the store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "binhacken:conn:"}
}

// DialRedis parses url (redis://...), connects and pings with a short timeout.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("websession: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("websession: redis ping: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (State, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}

	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return State{}, fmt.Errorf("websession: failed to unmarshal: %w", err)
	}
	return st, nil
}

func (r *RedisStore) Put(ctx context.Context, id string, st State, ttl time.Duration) error {
	if ttl <= 0 {
		return r.client.Del(ctx, r.key(id)).Err()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("websession: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(id), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }
