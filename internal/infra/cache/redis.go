package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ig-digest-bot/internal/infra/metrics"
)

const dedupKeyPrefix = "ig:msg:"

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	err := client.Ping(pingCtx).Err()
	metrics.ObserveNetworkRequest("redis", "ping", addr, start, err)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisDeduplicator реализует domain.MessageDeduplicator через ключи Redis с TTL.
// Окно общее для всех инстансов сервиса.
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicator создаёт дедупликатор; ttl должен покрывать окно ретраев вебхука.
func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduplicator{client: client, ttl: ttl}
}

// MarkSeen запоминает идентификатор на время ttl через SET NX.
// Возвращает true только тому вызову, который создал ключ.
func (d *RedisDeduplicator) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	start := time.Now()
	fresh, err := d.client.SetNX(ctx, dedupKey(messageID), "1", d.ttl).Result()
	metrics.ObserveNetworkRequest("redis", "dedup_setnx", "dedup", start, err)
	if err != nil {
		return false, fmt.Errorf("redis dedup: %w", err)
	}
	return fresh, nil
}

func dedupKey(messageID string) string {
	return dedupKeyPrefix + messageID
}
