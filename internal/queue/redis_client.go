package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the list analysis jobs are pushed to.
const DefaultRedisKey = "simulator:analysis:jobs"

type redisList interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
}

// RedisClient is a queue on a Redis list. Producers LPUSH; workers move each
// job onto a processing list with BLMOVE and remove it there once handled, so
// a job held by a crashed worker is restored by Recover instead of lost.
type RedisClient struct {
	rdb        redisList
	key        string
	processing string
}

// NewRedisClient connects to the Redis server at url (redis://...).
func NewRedisClient(ctx context.Context, url, key string) (*RedisClient, *redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisClientWithList(rdb, key), rdb, nil
}

// NewRedisClientWithList wraps an existing Redis client.
func NewRedisClientWithList(rdb redisList, key string) *RedisClient {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisClient{rdb: rdb, key: key, processing: key + ":processing"}
}

// Send pushes msg onto the list.
func (r *RedisClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := r.rdb.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Receive blocks up to wait for the next raw payload and parks it on the
// processing list. ok is false when the wait elapsed without a message. The
// caller must Ack or Requeue every received body.
func (r *RedisClient) Receive(ctx context.Context, wait time.Duration) (body string, ok bool, err error) {
	body, err = r.rdb.BLMove(ctx, r.key, r.processing, "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis blmove: %w", err)
	}
	return body, true, nil
}

// Ack removes a handled body from the processing list.
func (r *RedisClient) Ack(ctx context.Context, body string) error {
	if err := r.rdb.LRem(ctx, r.processing, 1, body).Err(); err != nil {
		return fmt.Errorf("redis lrem: %w", err)
	}
	return nil
}

// Requeue pushes a body back onto the job list and then drops it from the
// processing list. A crash between the two leaves a duplicate, never a loss.
func (r *RedisClient) Requeue(ctx context.Context, body string) error {
	if err := r.rdb.LPush(ctx, r.key, body).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return r.Ack(ctx, body)
}

// Recover moves every body left on the processing list back to the consuming
// end of the job list, oldest first in line, and returns how many were moved.
// Workers call it on startup.
func (r *RedisClient) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := r.rdb.LMove(ctx, r.processing, r.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis lmove: %w", err)
		}
		moved++
	}
}

var _ Client = (*RedisClient)(nil)
