package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qianban/qianban/internal/llm"
)

// Redis is a Store backed by a Redis list per profile, for deployments where
// the daemon restarts must not lose conversation context. Each entry is one
// JSON-encoded message; lists are trimmed to maxKept and expire after ttl of
// inactivity.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis instance described by url
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func historyKey(profileID string) string {
	return "chat:" + profileID
}

func (r *Redis) Append(ctx context.Context, profileID string, msg llm.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	key := historyKey(profileID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-maxKept), -1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, profileID string, n int) ([]llm.Message, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	raw, err := r.client.LRange(ctx, historyKey(profileID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	msgs := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *Redis) Clear(ctx context.Context, profileID string) error {
	return r.client.Del(ctx, historyKey(profileID)).Err()
}
