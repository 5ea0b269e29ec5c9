package refreshtrending

import "time"

type Config struct {
	Timeout      time.Duration
	DefaultLimit int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      60 * time.Second,
		DefaultLimit: 20,
	}
}
