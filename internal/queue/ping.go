package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// pingReplyTTL bounds how long a ping reply stays visible. The health probe
// polls for the reply within seconds of enqueueing, so a short TTL keeps
// stale replies from accumulating.
const pingReplyTTL = 60 * time.Second

// pingReplyValue is the payload written for a completed ping round trip.
const pingReplyValue = "pong"

// ReplyStore records task replies for out-of-band pickup, keyed by job ID.
type ReplyStore interface {
	SetReply(ctx context.Context, key, value string, ttl time.Duration) error
	GetReply(ctx context.Context, key string) (string, error)
}

// RedisReplyStore implements ReplyStore on a Redis connection.
type RedisReplyStore struct {
	client *redis.Client
}

// NewRedisReplyStore wraps an existing Redis client.
func NewRedisReplyStore(client *redis.Client) *RedisReplyStore {
	return &RedisReplyStore{client: client}
}

func (s *RedisReplyStore) SetReply(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// GetReply returns the stored reply, or "" when no reply exists yet.
func (s *RedisReplyStore) GetReply(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// PingReplyKey is the reply key for a ping job. Shared with the worker
// health probe, which polls this key after enqueueing a ping.
func PingReplyKey(jobID string) string {
	return "ping:reply:" + jobID
}

// NewPingHandler returns the handler for the ping task. It writes "pong"
// under the job's reply key so the enqueuing side can confirm that a worker
// picked up and completed the job.
func NewPingHandler(store ReplyStore) Handler {
	return func(ctx context.Context, job types.JobEnvelope) error {
		if err := store.SetReply(ctx, PingReplyKey(job.JobID), pingReplyValue, pingReplyTTL); err != nil {
			return fmt.Errorf("queue: failed to record ping reply for job %s: %w", job.JobID, err)
		}
		return nil
	}
}
