package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
)

// RedisEnrichmentQueue реализует очередь задач обогащения на базе Redis lists.
type RedisEnrichmentQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEnrichmentQueue создаёт очередь по указанному ключу.
func NewRedisEnrichmentQueue(client *redis.Client, key string) *RedisEnrichmentQueue {
	return &RedisEnrichmentQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisEnrichmentQueue) Enqueue(ctx context.Context, job domain.EnrichmentJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisEnrichmentQueue) Pop(ctx context.Context) (domain.EnrichmentJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.EnrichmentJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.EnrichmentJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.EnrichmentJob{}, err
		}
		if len(res) != 2 {
			return domain.EnrichmentJob{}, errors.New("redis queue: unexpected response")
		}
		return decodeJob([]byte(res[1]))
	}
}

func encodeJob(job domain.EnrichmentJob) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return payload, nil
}

func decodeJob(raw []byte) (domain.EnrichmentJob, error) {
	var job domain.EnrichmentJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.EnrichmentJob{}, fmt.Errorf("decode job: %w", err)
	}
	if job.PostID == "" {
		return domain.EnrichmentJob{}, errors.New("decode job: empty post_id")
	}
	return job, nil
}
