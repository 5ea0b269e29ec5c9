package cache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"manhwa-recommender/internal/common/logger"
)

// FailoverStore sends calls to primary while its breaker is closed and to
// fallback when a call fails or the breaker is open. Deletes go to both so
// values written during an outage cannot resurface after invalidation.
type FailoverStore struct {
	primary  Store
	fallback Store
	breaker  *gobreaker.CircuitBreaker[any]
	logger   logger.Logger
}

func NewFailoverStore(primary, fallback Store, cfg Config, log logger.Logger) *FailoverStore {
	log = log.WithFields(map[string]interface{}{"component": "failover-cache"})

	settings := gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("cache circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}

	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker[any](settings),
		logger:   log,
	}
}

// State reports the breaker state ("closed", "half-open", "open").
func (f *FailoverStore) State() string {
	return f.breaker.State().String()
}

func failover[T any](f *FailoverStore, op string, primary, fallback func() (T, error)) (T, error) {
	out, err := f.breaker.Execute(func() (any, error) {
		return primary()
	})
	if err == nil {
		return out.(T), nil
	}

	if !stderrors.Is(err, gobreaker.ErrOpenState) && !stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		f.logger.Warn("primary cache failed, using fallback", map[string]interface{}{
			"op":    op,
			"error": err,
		})
	}
	observe("failover", op, "fallback")
	return fallback()
}

func (f *FailoverStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type hit struct {
		value []byte
		ok    bool
	}
	h, err := failover(f, "get",
		func() (hit, error) {
			v, ok, err := f.primary.Get(ctx, key)
			return hit{v, ok}, err
		},
		func() (hit, error) {
			v, ok, err := f.fallback.Get(ctx, key)
			return hit{v, ok}, err
		},
	)
	return h.value, h.ok, err
}

func (f *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := failover(f, "set",
		func() (struct{}, error) { return struct{}{}, f.primary.Set(ctx, key, value, ttl) },
		func() (struct{}, error) { return struct{}{}, f.fallback.Set(ctx, key, value, ttl) },
	)
	return err
}

func (f *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	local, _ := f.fallback.Del(ctx, keys...)
	return failover(f, "del",
		func() (int64, error) { return f.primary.Del(ctx, keys...) },
		func() (int64, error) { return local, nil },
	)
}

func (f *FailoverStore) Exists(ctx context.Context, key string) (bool, error) {
	return failover(f, "exists",
		func() (bool, error) { return f.primary.Exists(ctx, key) },
		func() (bool, error) { return f.fallback.Exists(ctx, key) },
	)
}

func (f *FailoverStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return failover(f, "expire",
		func() (bool, error) { return f.primary.Expire(ctx, key, ttl) },
		func() (bool, error) { return f.fallback.Expire(ctx, key, ttl) },
	)
}

func (f *FailoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return failover(f, "ttl",
		func() (time.Duration, error) { return f.primary.TTL(ctx, key) },
		func() (time.Duration, error) { return f.fallback.TTL(ctx, key) },
	)
}

func (f *FailoverStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	local, _ := f.fallback.DeletePrefix(ctx, prefix)
	return failover(f, "delete_prefix",
		func() (int64, error) { return f.primary.DeletePrefix(ctx, prefix) },
		func() (int64, error) { return local, nil },
	)
}

func (f *FailoverStore) Close() error {
	return stderrors.Join(f.primary.Close(), f.fallback.Close())
}
