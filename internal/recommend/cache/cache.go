// Package cache stores serialized recommendation payloads. Services depend on
// the Store interface; main wires Redis behind a circuit breaker with an
// in-memory fallback.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"manhwa-recommender/internal/common/config"
)

// TTL sentinels, matching Redis TTL replies.
const (
	TTLMissing    time.Duration = -2
	TTLPersistent time.Duration = -1
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Close() error
}

type Config struct {
	OperationTimeout time.Duration
	SweepInterval    time.Duration
	BreakerFailures  uint32
	BreakerTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		OperationTimeout: 500 * time.Millisecond,
		SweepInterval:    30 * time.Second,
		BreakerFailures:  5,
		BreakerTimeout:   30 * time.Second,
	}
}

func FromConfig(c config.CacheConfig) Config {
	out := DefaultConfig()
	if c.OperationTimeout > 0 {
		out.OperationTimeout = config.GetDuration(c.OperationTimeout)
	}
	if c.SweepInterval > 0 {
		out.SweepInterval = config.GetSeconds(c.SweepInterval)
	}
	if c.BreakerFailures > 0 {
		out.BreakerFailures = uint32(c.BreakerFailures)
	}
	if c.BreakerTimeout > 0 {
		out.BreakerTimeout = config.GetSeconds(c.BreakerTimeout)
	}
	return out
}

const (
	recommendationsPrefix = "recommendations:"
	trendingPrefix        = "trending:manhwas:"
)

// RecommendationKey varies with every request parameter that changes the
// payload. Filter values are sorted so equivalent requests share a key.
func RecommendationKey(userID string, limit, offset int, genres, tags []string) string {
	return fmt.Sprintf("%s%d:%d:%s:%s", UserPrefix(userID), limit, offset, joinSorted(genres), joinSorted(tags))
}

// UserPrefix matches every cached recommendation set of one user.
func UserPrefix(userID string) string {
	return recommendationsPrefix + userID + ":"
}

func TrendingKey(limit, offset int) string {
	return fmt.Sprintf("%s%d:%d", trendingPrefix, limit, offset)
}

func TrendingPrefix() string {
	return trendingPrefix
}

func joinSorted(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// GetJSON decodes a cached value into v. A value that no longer decodes is
// reported as a miss.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, nil
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return s.Set(ctx, key, raw, ttl)
}
