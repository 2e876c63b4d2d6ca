// Package presence publishes which users currently hold a live connection.
package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"amici-chat/internal/registry"
)

// Tracker records online transitions and answers status queries.
type Tracker interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	Statuses(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// OnlineKey is the Redis set holding online user IDs.
const OnlineKey = "presence:online"

// RedisTracker mirrors presence into a Redis set so other instances and
// services can read it.
type RedisTracker struct {
	rdb *redis.Client
	key string
}

// NewRedisTracker connects to addr.
func NewRedisTracker(addr string) *RedisTracker {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisTracker{rdb: rdb, key: OnlineKey}
}

// Ping checks connectivity.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

func (t *RedisTracker) Online(ctx context.Context, userID string) error {
	return t.rdb.SAdd(ctx, t.key, userID).Err()
}

func (t *RedisTracker) Offline(ctx context.Context, userID string) error {
	return t.rdb.SRem(ctx, t.key, userID).Err()
}

func (t *RedisTracker) Statuses(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	flags, err := t.rdb.SMIsMember(ctx, t.key, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = flags[i]
	}
	return out, nil
}

func (t *RedisTracker) Close() error {
	return t.rdb.Close()
}

// LocalTracker answers from this instance's registry.
type LocalTracker struct {
	reg *registry.Registry
}

func NewLocalTracker(reg *registry.Registry) *LocalTracker {
	return &LocalTracker{reg: reg}
}

func (LocalTracker) Online(context.Context, string) error  { return nil }
func (LocalTracker) Offline(context.Context, string) error { return nil }

func (t *LocalTracker) Statuses(_ context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = t.reg.Online(id)
	}
	return out, nil
}
