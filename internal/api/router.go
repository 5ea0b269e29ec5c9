// Package api exposes the recommendation service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manhwa-recommender/internal/common/auth"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/service"
)

type Recommender interface {
	Recommend(ctx context.Context, p service.Params) (*models.RecommendationResponse, error)
	Trending(ctx context.Context, p service.TrendingParams) (*models.RecommendationResponse, error)
	UpdatePreferences(ctx context.Context, userID string, prefs models.UserPreferences) (models.UserPreferences, error)
}

type ResourceReporter interface {
	Sample(ctx context.Context) models.ResourceSnapshot
	IsHeavy(snap models.ResourceSnapshot) bool
}

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type Options struct {
	ServiceName    string
	Version        string
	RequestTimeout time.Duration
	AllowedOrigins []string

	RecommendationsLimit int
	TrendingLimit        int
	RateWindow           time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RateWindow <= 0 {
		o.RateWindow = 15 * time.Minute
	}
	if o.RecommendationsLimit <= 0 {
		o.RecommendationsLimit = 20
	}
	if o.TrendingLimit <= 0 {
		o.TrendingLimit = 30
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	return o
}

type Server struct {
	opts        Options
	recommender Recommender
	resources   ResourceReporter
	verifier    *auth.Verifier
	checks      map[string]Check
	logger      logger.Logger
}

func NewServer(opts Options, rec Recommender, res ResourceReporter, verifier *auth.Verifier, checks map[string]Check, log logger.Logger) *Server {
	return &Server{
		opts:        opts.withDefaults(),
		recommender: rec,
		resources:   res,
		verifier:    verifier,
		checks:      checks,
		logger:      log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.opts.RequestTimeout))

		r.Route("/recommendations", func(r chi.Router) {
			r.With(
				httprate.LimitByIP(s.opts.TrendingLimit, s.opts.RateWindow),
				s.optionalAuth,
			).Get("/trending", s.trending)

			r.With(
				httprate.LimitByIP(s.opts.RecommendationsLimit, s.opts.RateWindow),
				s.requireAuth,
			).Get("/", s.recommendations)
		})

		r.With(s.requireAuth).Put("/users/preferences", s.updatePreferences)
		r.Get("/system/resources", s.systemResources)
	})

	return r
}
