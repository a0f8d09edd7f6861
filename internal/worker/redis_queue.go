package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultQueueName = "facechanger:jobs"
	// BRPOP 单次阻塞时长，到期后重新检查 ctx
	redisPopTimeout = 2 * time.Second
)

// RedisQueue keeps jobs in a Redis list: LPUSH to enqueue, BRPOP to take.
// Several server processes may share one queue.
type RedisQueue struct {
	client *redis.Client
	name   string
	owns   bool
	closed atomic.Bool
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultQueueName
	}
	return &RedisQueue{client: client, name: name}
}

// NewRedisQueueFromURL connects to redis://host:port/db and checks the
// connection with PING.
func NewRedisQueueFromURL(rawURL, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	q := NewRedisQueue(client, name)
	q.owns = true
	return q, nil
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := job.encode()
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.name, payload).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		result, err := q.client.BRPop(ctx, redisPopTimeout, q.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrQueueClosed
			}
			return Job{}, fmt.Errorf("redis brpop: %w", err)
		}
		// result[0] 为队列名，result[1] 为任务内容
		if len(result) < 2 {
			continue
		}
		job, err := decodeJob(result[1])
		if err != nil {
			logrus.WithError(err).WithField("queue", q.name).Warn("queue_job_dropped")
			continue
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func (q *RedisQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	if q.owns {
		return q.client.Close()
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)
