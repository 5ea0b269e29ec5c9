package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top, then applies environment overrides (database.postgres.host ->
// DATABASE_POSTGRES_HOST).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile reads a single config file; used by tools and tests.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers the keys that have no yaml default, so AutomaticEnv
// can still populate them on Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"auth.jwt_secret",
		"database.postgres.host",
		"database.postgres.port",
		"database.postgres.database",
		"database.postgres.user",
		"database.postgres.password",
		"database.redis.address",
		"database.redis.password",
		"database.elasticsearch.url",
		"camunda.broker_address",
	} {
		_ = v.BindEnv(key)
	}
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = os.Getenv("REDIS_URL")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "manhwa-recommender"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	if cfg.Camunda.RegistryPath == "" {
		cfg.Camunda.RegistryPath = "configs/task-registry.json"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "manhwas"
	}
	if cfg.Database.Redis.MaxRetries == 0 {
		cfg.Database.Redis.MaxRetries = 10
	}
	if cfg.Database.Redis.MinRetryBackoff == 0 {
		cfg.Database.Redis.MinRetryBackoff = 50
	}
	if cfg.Database.Redis.MaxRetryBackoff == 0 {
		cfg.Database.Redis.MaxRetryBackoff = 1000
	}

	if cfg.Cache.RecommendationTTL == 0 {
		cfg.Cache.RecommendationTTL = 24 * 60 * 60
	}
	if cfg.Cache.TrendingTTL == 0 {
		cfg.Cache.TrendingTTL = 60 * 60
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = 30
	}
	if cfg.Cache.OperationTimeout == 0 {
		cfg.Cache.OperationTimeout = 500
	}
	if cfg.Cache.BreakerFailures == 0 {
		cfg.Cache.BreakerFailures = 5
	}
	if cfg.Cache.BreakerTimeout == 0 {
		cfg.Cache.BreakerTimeout = 30
	}

	rc := &cfg.Recommendation
	if rc.DefaultLimit == 0 {
		rc.DefaultLimit = 10
	}
	if rc.MaxLimit == 0 {
		rc.MaxLimit = 100
	}
	if rc.SampleInterval == 0 {
		rc.SampleInterval = 100
	}
	if rc.ContentSource == "" {
		rc.ContentSource = "postgres"
	}
	if rc.AlgorithmVersion == "" {
		rc.AlgorithmVersion = "1.0.0"
	}
	if rc.RecordTTL == 0 {
		rc.RecordTTL = 24 * 60 * 60
	}
	if rc.Tiers.StandardCPU == 0 {
		rc.Tiers.StandardCPU = 70
	}
	if rc.Tiers.StandardMemory == 0 {
		rc.Tiers.StandardMemory = 70
	}
	if rc.Tiers.MinHistory == 0 {
		rc.Tiers.MinHistory = 5
	}
	if rc.Tiers.EnhancedCPU == 0 {
		rc.Tiers.EnhancedCPU = 50
	}
	if rc.Tiers.EnhancedMemory == 0 {
		rc.Tiers.EnhancedMemory = 50
	}
	if rc.Tiers.OffPeakStart == 0 && rc.Tiers.OffPeakEnd == 0 {
		rc.Tiers.OffPeakStart = 2
		rc.Tiers.OffPeakEnd = 5
	}

	if cfg.RateLimit.RecommendationsRequests == 0 {
		cfg.RateLimit.RecommendationsRequests = 20
	}
	if cfg.RateLimit.TrendingRequests == 0 {
		cfg.RateLimit.TrendingRequests = 30
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = 15 * 60
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 0.1
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when elasticsearch is enabled")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch cfg.Recommendation.ContentSource {
	case "postgres":
	case "elasticsearch":
		if !cfg.Database.Elasticsearch.Enabled {
			return fmt.Errorf("recommendation.content_source=elasticsearch requires database.elasticsearch.enabled")
		}
	default:
		return fmt.Errorf("recommendation.content_source must be postgres or elasticsearch, got %q", cfg.Recommendation.ContentSource)
	}

	t := cfg.Recommendation.Tiers
	if t.OffPeakStart < 0 || t.OffPeakEnd > 23 || t.OffPeakStart > t.OffPeakEnd {
		return fmt.Errorf("recommendation.tiers off-peak window %d-%d is invalid", t.OffPeakStart, t.OffPeakEnd)
	}
	return nil
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
