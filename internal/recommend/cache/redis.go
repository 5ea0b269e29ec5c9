package cache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
)

const scanBatch = 200

// RedisStore bounds every call with the configured operation timeout.
// Reconnection backoff is the client's own retry policy.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  logger.Logger
}

func NewRedisStore(client redis.UniversalClient, cfg Config, log logger.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		timeout: cfg.OperationTimeout,
		logger:  log.WithFields(map[string]interface{}{"component": "redis-cache"}),
	}
}

func (r *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	raw, err := r.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		observe("redis", "get", "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, r.fail("get", err)
	}
	observe("redis", "get", "hit")
	return raw, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return r.fail("set", err)
	}
	observe("redis", "set", "ok")
	return nil
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, r.fail("del", err)
	}
	observe("redis", "del", "ok")
	return n, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, r.fail("exists", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, r.fail("expire", err)
	}
	return ok, nil
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return TTLMissing, r.fail("ttl", err)
	}
	return ttl, nil
}

// DeletePrefix walks the keyspace with SCAN, deleting one batch at a time.
func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return deleted, r.fail("scan", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, r.fail("del", err)
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	observe("redis", "delete_prefix", "ok")
	return deleted, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return r.fail("ping", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) fail(op string, err error) error {
	observe("redis", op, "error")
	r.logger.Debug("redis operation failed", map[string]interface{}{
		"op":    op,
		"error": err,
	})
	return errors.NewCacheUnavailableError(op, err)
}

func observe(store, op, result string) {
	metrics.CacheOperations.WithLabelValues(store, op, result).Inc()
}
