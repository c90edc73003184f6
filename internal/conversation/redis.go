package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps dialogs in Redis so they survive restarts. Abandoned
// dialogs expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to url and pings the server.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisStore{client: c, ttl: ttl}, nil
}

func key(userID int64) string { return "conv:" + strconv.FormatInt(userID, 10) }

func (s *RedisStore) Load(ctx context.Context, userID int64) (Dialog, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Dialog{State: Idle}, nil
	}
	if err != nil {
		return Dialog{}, fmt.Errorf("redis: get dialog: %w", err)
	}
	var d Dialog
	if err := json.Unmarshal(raw, &d); err != nil {
		return Dialog{}, fmt.Errorf("redis: decode dialog: %w", err)
	}
	return d, nil
}

func (s *RedisStore) Save(ctx context.Context, userID int64, d Dialog) error {
	if d.IsIdle() {
		return s.client.Del(ctx, key(userID)).Err()
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: encode dialog: %w", err)
	}
	return s.client.Set(ctx, key(userID), raw, s.ttl).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
