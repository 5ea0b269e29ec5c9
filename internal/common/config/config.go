package config

import (
	"fmt"
	"time"
)

type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Server         ServerConfig            `mapstructure:"server"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Cache          CacheConfig             `mapstructure:"cache"`
	Recommendation RecommendationConfig    `mapstructure:"recommendation"`
	Auth           AuthConfig              `mapstructure:"auth"`
	RateLimit      RateLimitConfig         `mapstructure:"rate_limit"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	Tracing        TracingConfig           `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	RequestTimeout int      `mapstructure:"request_timeout"` // milliseconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	RegistryPath   string `mapstructure:"registry_path"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	URL       string   `mapstructure:"url"` // single address shorthand
}

func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Address         string `mapstructure:"address"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	MaxRetries      int    `mapstructure:"max_retries"`
	MinRetryBackoff int    `mapstructure:"min_retry_backoff"` // milliseconds
	MaxRetryBackoff int    `mapstructure:"max_retry_backoff"` // milliseconds
}

// CacheConfig controls the recommendation cache and its Redis failover.
type CacheConfig struct {
	RecommendationTTL int `mapstructure:"recommendation_ttl"` // seconds
	TrendingTTL       int `mapstructure:"trending_ttl"`       // seconds
	SweepInterval     int `mapstructure:"sweep_interval"`     // seconds
	OperationTimeout  int `mapstructure:"operation_timeout"`  // milliseconds
	BreakerFailures   int `mapstructure:"breaker_failures"`
	BreakerTimeout    int `mapstructure:"breaker_timeout"` // seconds
}

type RecommendationConfig struct {
	DefaultLimit     int            `mapstructure:"default_limit"`
	MaxLimit         int            `mapstructure:"max_limit"`
	SampleInterval   int            `mapstructure:"sample_interval"` // milliseconds
	ContentSource    string         `mapstructure:"content_source"`  // postgres | elasticsearch
	AlgorithmVersion string         `mapstructure:"algorithm_version"`
	RecordTTL        int            `mapstructure:"record_ttl"` // seconds
	Tiers            TierThresholds `mapstructure:"tiers"`
}

type TierThresholds struct {
	StandardCPU    int `mapstructure:"standard_cpu"`
	StandardMemory int `mapstructure:"standard_memory"`
	MinHistory     int `mapstructure:"min_history"`
	EnhancedCPU    int `mapstructure:"enhanced_cpu"`
	EnhancedMemory int `mapstructure:"enhanced_memory"`
	OffPeakStart   int `mapstructure:"off_peak_start"`
	OffPeakEnd     int `mapstructure:"off_peak_end"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	RecommendationsRequests int `mapstructure:"recommendations_requests"`
	TrendingRequests        int `mapstructure:"trending_requests"`
	Window                  int `mapstructure:"window"` // seconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
