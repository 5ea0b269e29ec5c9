package resources

import (
	"context"
	"time"

	"manhwa-recommender/internal/common/logger"
)

type ThrottleOptions struct {
	CPUThreshold    int
	MemoryThreshold int
	RetryDelay      time.Duration
	MaxRetries      int
}

func DefaultThrottleOptions() ThrottleOptions {
	return ThrottleOptions{
		CPUThreshold:    70,
		MemoryThreshold: 80,
		RetryDelay:      time.Second,
		MaxRetries:      3,
	}
}

// Throttle runs fn once usage drops below the thresholds. After MaxRetries
// saturated samples it runs fallback instead; the bool result reports
// whether the fallback was used.
func Throttle[T any](
	ctx context.Context,
	sampler Sampler,
	opts ThrottleOptions,
	log logger.Logger,
	fn func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
) (T, bool, error) {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	for attempt := 1; ; attempt++ {
		snap := sampler.Sample(ctx)
		if snap.CPU < opts.CPUThreshold && snap.Memory < opts.MemoryThreshold {
			out, err := fn(ctx)
			return out, false, err
		}

		if attempt >= opts.MaxRetries {
			log.Warn("resource throttling: max retries reached, using fallback", map[string]interface{}{
				"cpu":     snap.CPU,
				"memory":  snap.Memory,
				"retries": attempt,
			})
			out, err := fallback(ctx)
			return out, true, err
		}

		log.Info("resource throttling: waiting before retry", map[string]interface{}{
			"delay":   opts.RetryDelay.String(),
			"attempt": attempt,
		})
		select {
		case <-time.After(opts.RetryDelay):
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}
