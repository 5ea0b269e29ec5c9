package generaterecommendations

import (
	"time"

	"manhwa-recommender/internal/resources"
)

type Config struct {
	Timeout  time.Duration
	Throttle resources.ThrottleOptions
}

func LoadConfig() *Config {
	return &Config{
		Timeout:  30 * time.Second,
		Throttle: resources.DefaultThrottleOptions(),
	}
}
