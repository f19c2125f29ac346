package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue backs Queue with Redis lists: RPUSH / LPOP / BLPOP / LLEN.
type RedisQueue struct {
	client *redis.Client
	maxLen int64
}

// NewRedisQueue wraps an already-connected client. maxLen bounds each
// channel; 0 means unbounded. The bound is checked with LLEN before the
// push, so concurrent in-flight requests may overshoot it slightly; it is
// an admission-control bound, not an exact capacity guarantee.
func NewRedisQueue(client *redis.Client, maxLen int64) *RedisQueue {
	return &RedisQueue{client: client, maxLen: maxLen}
}

func (q *RedisQueue) PushTail(ctx context.Context, channel string, payload []byte) error {
	if q.maxLen > 0 {
		length, err := q.client.LLen(ctx, channel).Result()
		if err != nil {
			return &UnavailableError{Op: "llen", Err: err}
		}
		if length >= q.maxLen {
			return ErrFull
		}
	}

	if err := q.client.RPush(ctx, channel, payload).Err(); err != nil {
		return &UnavailableError{Op: "rpush", Err: err}
	}
	return nil
}

func (q *RedisQueue) PopHead(ctx context.Context, channel string) ([]byte, error) {
	val, err := q.client.LPop(ctx, channel).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, &UnavailableError{Op: "lpop", Err: err}
	}
	return val, nil
}

// BPopHead relies on BLPOP checking its keys in argument order, which gives
// strict priority across tier channels for free.
func (q *RedisQueue) BPopHead(ctx context.Context, channels []string, timeout time.Duration) (string, []byte, error) {
	res, err := q.client.BLPop(ctx, timeout, channels...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrEmpty
	}
	if err != nil {
		return "", nil, &UnavailableError{Op: "blpop", Err: err}
	}
	// BLPOP returns [key, value].
	return res[0], []byte(res[1]), nil
}

func (q *RedisQueue) Len(ctx context.Context, channel string) (int64, error) {
	length, err := q.client.LLen(ctx, channel).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "llen", Err: err}
	}
	return length, nil
}
