package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// RedisMessageQueue реализует очередь задач оценки на базе Redis lists.
// Задача, для которой ack вызван с false, возвращается в хвост очереди.
type RedisMessageQueue struct {
	client *redis.Client
	key    string
}

var _ domain.MessageQueue = (*RedisMessageQueue)(nil)

// NewRedisMessageQueue создаёт очередь по указанному ключу.
func NewRedisMessageQueue(client *redis.Client, key string) *RedisMessageQueue {
	return &RedisMessageQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisMessageQueue) Enqueue(ctx context.Context, job domain.ScoreJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisMessageQueue) Receive(ctx context.Context) (domain.ScoreJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ScoreJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ScoreJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ScoreJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ScoreJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.ScoreJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.ScoreJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			requeueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := q.client.RPush(requeueCtx, q.key, raw).Err(); err != nil {
				return fmt.Errorf("requeue job: %w", err)
			}
			return nil
		}
		return job, ack, nil
	}
}
