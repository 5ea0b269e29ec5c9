package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"manhwa-recommender/internal/api"
	"manhwa-recommender/internal/common/auth"
	"manhwa-recommender/internal/common/camunda"
	"manhwa-recommender/internal/common/config"
	"manhwa-recommender/internal/common/database"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/observability"
	"manhwa-recommender/internal/recommend/cache"
	"manhwa-recommender/internal/recommend/scoring"
	"manhwa-recommender/internal/recommend/service"
	"manhwa-recommender/internal/recommend/store"
	"manhwa-recommender/internal/recommend/tier"
	"manhwa-recommender/internal/resources"
	"manhwa-recommender/pkg/registry"

	rt "manhwa-recommender/internal/workers/catalog/refresh-trending"
	gr "manhwa-recommender/internal/workers/recommendation/generate-recommendations"
	ir "manhwa-recommender/internal/workers/recommendation/invalidate-recommendations"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting recommender", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing)
	if err != nil {
		zapLog.Fatal("tracing init failed", zap.Error(err))
	}
	defer tracing.Shutdown()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	repo := store.NewPostgres(pg.DB, log)
	if cfg.Database.Postgres.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
	}

	checks := map[string]api.Check{"postgres": pg.Ping}

	// --- Cache: Redis behind a breaker, in-process map as fallback ---
	cacheCfg := cache.FromConfig(cfg.Cache)
	memory := cache.NewMemoryStore(cacheCfg.SweepInterval)
	var recCache cache.Store = memory

	if cfg.Database.Redis.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 5, time.Second, log, "Redis connection")
		if err != nil {
			log.Warn("redis unavailable, serving from the in-memory cache", map[string]interface{}{"error": err})
		} else {
			redisStore := cache.NewRedisStore(rc.Client, cacheCfg, log)
			recCache = cache.NewFailoverStore(redisStore, memory, cacheCfg, log)
			checks["redis"] = redisStore.Ping
		}
	}
	defer recCache.Close()

	// --- Optional Elasticsearch content source ---
	var search scoring.CatalogReader
	if cfg.Recommendation.ContentSource == "elasticsearch" && cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 10, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		search = store.NewElasticCatalog(es.Client, cfg.Database.Elasticsearch.Index, log)
		checks["elasticsearch"] = es.Ping
	}

	// --- Recommendation service ---
	monitor := resources.NewMonitor(&resources.Config{
		SampleInterval:     config.GetDuration(cfg.Recommendation.SampleInterval),
		HeavyCPU:           70,
		HeavyMemory:        80,
		HeavyProcessMemory: 75,
	}, log)

	pipeline := scoring.NewPipeline(
		scoring.NewLightweight(repo, repo),
		log,
		scoring.NewCollaborative(repo, repo),
		scoring.NewContent(repo, search, repo),
	).WithTracer(tracing.Tracer())

	svc := service.New(service.FromConfig(cfg), service.Dependencies{
		Pipeline: pipeline,
		Selector: tier.NewSelector(tier.FromConfig(cfg.Recommendation.Tiers)),
		Sampler:  monitor,
		Catalog:  repo,
		History:  repo,
		Users:    repo,
		Records:  repo,
		Cache:    recCache,
		Metrics:  obs,
		Tracer:   tracing.Tracer(),
	}, log)

	// --- Zeebe workers ---
	if cfg.Camunda.Enabled {
		zeebeClient, err := camunda.Connect(ctx, cfg.Camunda, camunda.DefaultRetryConfig, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		workers := camunda.NewWorkers(zeebeClient, log)
		if reg, err := registry.Load(cfg.Camunda.RegistryPath); err != nil {
			log.Warn("task registry not loaded, job variables are not schema-checked", map[string]interface{}{
				"path":  cfg.Camunda.RegistryPath,
				"error": err,
			})
		} else if err := reg.Validate(); err != nil {
			zapLog.Fatal("task registry is invalid", zap.Error(err))
		} else {
			workers.WithRegistry(reg)
		}
		defer func() {
			if err := workers.Close(); err != nil {
				log.Error("error closing zeebe workers", map[string]interface{}{"error": err})
			}
		}()

		grCfg := gr.LoadConfig()
		workerTimeout(&grCfg.Timeout, cfg, gr.TaskType)
		workers.Start(gr.TaskType, config.GetWorkerConfig(cfg, gr.TaskType), gr.NewHandler(grCfg, svc, monitor, log))

		irCfg := ir.LoadConfig()
		workerTimeout(&irCfg.Timeout, cfg, ir.TaskType)
		workers.Start(ir.TaskType, config.GetWorkerConfig(cfg, ir.TaskType), ir.NewHandler(irCfg, svc, log))

		rtCfg := rt.LoadConfig()
		workerTimeout(&rtCfg.Timeout, cfg, rt.TaskType)
		rtCfg.DefaultLimit = cfg.Recommendation.DefaultLimit
		workers.Start(rt.TaskType, config.GetWorkerConfig(cfg, rt.TaskType), rt.NewHandler(rtCfg, svc, log))

		log.Info("zeebe workers started", map[string]interface{}{"count": workers.Count()})
	}

	// --- HTTP API ---
	var verifier *auth.Verifier
	if v, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer); err != nil {
		log.Warn("jwt verification disabled, personalized endpoints will reject requests", map[string]interface{}{"error": err})
	} else {
		verifier = v
	}

	server := api.NewServer(api.Options{
		ServiceName:          cfg.App.Name,
		Version:              cfg.App.Version,
		RequestTimeout:       config.GetDuration(cfg.Server.RequestTimeout),
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		RecommendationsLimit: cfg.RateLimit.RecommendationsRequests,
		TrendingLimit:        cfg.RateLimit.TrendingRequests,
		RateWindow:           config.GetSeconds(cfg.RateLimit.Window),
	}, svc, monitor, verifier, checks, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", map[string]interface{}{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down http server", map[string]interface{}{"error": err})
	}

	log.Info("recommender stopped gracefully", nil)
}

// workerTimeout applies the per-worker job timeout from config when set.
func workerTimeout(dst *time.Duration, cfg *config.Config, taskType string) {
	if wcfg, ok := cfg.Workers[taskType]; ok && wcfg.Timeout > 0 {
		*dst = config.GetDuration(wcfg.Timeout)
	}
}
