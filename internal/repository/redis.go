package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-engine/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-resource lock shared by every engine process that
// talks to the same Redis. Locks expire after ttl so a crashed holder cannot
// wedge a resource.
type RedisLocker struct {
	client    *redis.Client
	ttl       time.Duration
	retryWait time.Duration
	prefix    string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{
		client:    client,
		ttl:       ttl,
		retryWait: 25 * time.Millisecond,
		prefix:    "resource_lock:",
	}
}

func (l *RedisLocker) key(resourceID int64) string {
	return fmt.Sprintf("%s%d", l.prefix, resourceID)
}

func (l *RedisLocker) Lock(ctx context.Context, resourceID int64) (func(), error) {
	if l.client == nil {
		return nil, errors.New("redis client is nil")
	}
	key := l.key(resourceID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("failed to lock resource %d: %w", resourceID, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire redis lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("failed to lock resource %d: %w", resourceID, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		// The caller's context may already be done; release must still run.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
