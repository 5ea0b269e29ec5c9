// Package service answers recommendation requests: it checks the cache,
// picks a tier from current resource headroom, runs the scoring pipeline,
// records the result and caches the response.
package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"manhwa-recommender/internal/common/config"
	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/common/observability"
	"manhwa-recommender/internal/common/validation"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/cache"
	"manhwa-recommender/internal/recommend/scoring"
	"manhwa-recommender/internal/recommend/store"
	"manhwa-recommender/internal/recommend/tier"
	"manhwa-recommender/internal/resources"
)

type UserStore interface {
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	UpdatePreferences(ctx context.Context, userID string, prefs models.UserPreferences) error
}

type HistoryCounter interface {
	CountHistory(ctx context.Context, userID string) (int, error)
}

type RecordStore interface {
	SaveRecord(ctx context.Context, rec models.RecommendationRecord) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	DefaultLimit      int
	MaxLimit          int
	RecommendationTTL time.Duration
	TrendingTTL       time.Duration
	RecordTTL         time.Duration
	AlgorithmVersion  string
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:      10,
		MaxLimit:          100,
		RecommendationTTL: 24 * time.Hour,
		TrendingTTL:       time.Hour,
		RecordTTL:         24 * time.Hour,
		AlgorithmVersion:  "1.0.0",
	}
}

func FromConfig(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg.Recommendation.DefaultLimit > 0 {
		out.DefaultLimit = cfg.Recommendation.DefaultLimit
	}
	if cfg.Recommendation.MaxLimit > 0 {
		out.MaxLimit = cfg.Recommendation.MaxLimit
	}
	if cfg.Recommendation.AlgorithmVersion != "" {
		out.AlgorithmVersion = cfg.Recommendation.AlgorithmVersion
	}
	if cfg.Recommendation.RecordTTL > 0 {
		out.RecordTTL = config.GetSeconds(cfg.Recommendation.RecordTTL)
	}
	if cfg.Cache.RecommendationTTL > 0 {
		out.RecommendationTTL = config.GetSeconds(cfg.Cache.RecommendationTTL)
	}
	if cfg.Cache.TrendingTTL > 0 {
		out.TrendingTTL = config.GetSeconds(cfg.Cache.TrendingTTL)
	}
	return out
}

// Dependencies are the collaborators a Service is built from.
type Dependencies struct {
	Pipeline *scoring.Pipeline
	Selector *tier.Selector
	Sampler  resources.Sampler
	Catalog  scoring.CatalogReader
	History  HistoryCounter
	Users    UserStore
	Records  RecordStore
	Cache    cache.Store
	Metrics  *observability.Observability
	Tracer   trace.Tracer
}

type Service struct {
	config Config
	deps   Dependencies
	schema *validation.SchemaValidator
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(cfg Config, deps Dependencies, log logger.Logger) *Service {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("manhwa-recommender/service")
	}
	return &Service{
		config: cfg,
		deps:   deps,
		schema: validation.MustSchemaValidator("recommendation-response", validation.RecommendationResponseSchema),
		logger: log.WithFields(map[string]interface{}{"component": "recommendation-service"}),
		tracer: tracer,
		now:    time.Now,
	}
}

// Params are the inputs of one personalized recommendation request.
type Params struct {
	UserID  string   `json:"userId" validate:"required,max=128"`
	Limit   int      `json:"limit" validate:"gte=1,lte=100"`
	Offset  int      `json:"offset" validate:"gte=0"`
	Genres  []string `json:"genres" validate:"max=20,dive,required,max=64"`
	Tags    []string `json:"tags" validate:"max=20,dive,required,max=64"`
	Refresh bool     `json:"refresh"`
}

type TrendingParams struct {
	Limit   int  `json:"limit" validate:"gte=1,lte=100"`
	Offset  int  `json:"offset" validate:"gte=0"`
	Refresh bool `json:"refresh"`
}

func (s *Service) normalizeLimit(limit int) int {
	if limit == 0 {
		return s.config.DefaultLimit
	}
	return limit
}

func (s *Service) checkLimit(limit int) error {
	if limit > s.config.MaxLimit {
		return errors.NewInvalidRequestError("limit exceeds the maximum of " + strconv.Itoa(s.config.MaxLimit))
	}
	return nil
}

// Recommend serves a cached payload unless p.Refresh is set, otherwise
// computes a fresh one at the tier current resources allow.
func (s *Service) Recommend(ctx context.Context, p Params) (*models.RecommendationResponse, error) {
	p.Limit = s.normalizeLimit(p.Limit)
	p.Genres = CleanList(p.Genres)
	p.Tags = CleanList(p.Tags)
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if err := s.checkLimit(p.Limit); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "service.recommend", trace.WithAttributes(
		attribute.String("userId", p.UserID),
		attribute.Int("limit", p.Limit),
		attribute.Bool("refresh", p.Refresh),
	))
	defer span.End()

	key := cache.RecommendationKey(p.UserID, p.Limit, p.Offset, p.Genres, p.Tags)
	if !p.Refresh {
		if cached, ok := s.cached(ctx, key, "recommendations"); ok {
			return cached, nil
		}
	}

	start := s.now()
	snap := s.deps.Sampler.Sample(ctx)
	historyCount, err := s.deps.History.CountHistory(ctx, p.UserID)
	if err != nil {
		return nil, errors.NewRecommendationFailedError(p.UserID, err)
	}
	selected := s.deps.Selector.Select(snap, historyCount, start.Hour())
	metrics.TierSelected.WithLabelValues(string(selected)).Inc()
	span.SetAttributes(attribute.String("tier", string(selected)))

	prefs, err := s.deps.Users.GetPreferences(ctx, p.UserID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeUserNotFound) {
			return nil, err
		}
		return nil, errors.NewRecommendationFailedError(p.UserID, err)
	}

	res, err := s.deps.Pipeline.Run(ctx, selected, scoring.Request{
		UserID:      p.UserID,
		Preferences: prefs,
		Genres:      p.Genres,
		Tags:        p.Tags,
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		s.logger.Error("recommendation pipeline failed", map[string]interface{}{
			"userId": p.UserID,
			"tier":   selected,
			"error":  err,
		})
		return nil, errors.NewRecommendationFailedError(p.UserID, err)
	}

	elapsed := s.now().Sub(start)
	resp := buildResponse(res.Items, selected, elapsed, res.Total, res.Confidence)
	if err := s.schema.Validate(resp); err != nil {
		s.logger.Error("generated payload failed schema validation", map[string]interface{}{
			"userId": p.UserID,
			"error":  err,
		})
		return nil, err
	}

	s.persist(ctx, p, selected, res, elapsed, start)
	s.store(ctx, key, resp, s.config.RecommendationTTL)

	metrics.RecommendationsServed.WithLabelValues(string(selected), "computed").Inc()
	metrics.RecommendationDuration.WithLabelValues(string(selected)).Observe(elapsed.Seconds())
	s.deps.Metrics.RecordGenerated(ctx, string(selected), elapsed)

	s.logger.Info("recommendations generated", map[string]interface{}{
		"userId":     p.UserID,
		"tier":       selected,
		"count":      len(resp.Items),
		"stages":     strings.Join(res.Applied, ","),
		"durationMs": elapsed.Milliseconds(),
	})
	return resp, nil
}

// Trending lists active items by view count. It needs no user and is
// cached for all callers.
func (s *Service) Trending(ctx context.Context, p TrendingParams) (*models.RecommendationResponse, error) {
	p.Limit = s.normalizeLimit(p.Limit)
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if err := s.checkLimit(p.Limit); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "service.trending")
	defer span.End()

	key := cache.TrendingKey(p.Limit, p.Offset)
	if !p.Refresh {
		if cached, ok := s.cached(ctx, key, "trending"); ok {
			return cached, nil
		}
	}

	start := s.now()
	q := store.TrendingQuery(p.Offset, p.Limit)
	total, err := s.deps.Catalog.Count(ctx, q)
	if err != nil {
		return nil, errors.NewRecommendationFailedError("", err)
	}
	items, err := s.deps.Catalog.Find(ctx, q)
	if err != nil {
		return nil, errors.NewRecommendationFailedError("", err)
	}

	scored := make([]models.ScoredRecommendation, 0, len(items))
	for _, m := range items {
		scored = append(scored, models.ScoredRecommendation{Manhwa: m, Score: 1, Reason: models.ReasonTrending})
	}
	elapsed := s.now().Sub(start)
	resp := buildResponse(scored, models.TierLightweight, elapsed, total, models.ConfidenceLightweight)

	s.store(ctx, key, resp, s.config.TrendingTTL)
	metrics.RecommendationsServed.WithLabelValues(string(models.TierLightweight), "trending").Inc()
	return resp, nil
}

// UpdatePreferences replaces the user's preferences and drops every cached
// recommendation set computed from the old ones.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs models.UserPreferences) (models.UserPreferences, error) {
	if strings.TrimSpace(userID) == "" {
		return models.UserPreferences{}, errors.NewInvalidRequestError("userId is required")
	}
	prefs = models.UserPreferences{
		Genres:       CleanList(prefs.Genres),
		ArtStyles:    CleanList(prefs.ArtStyles),
		Tags:         CleanList(prefs.Tags),
		ExcludedTags: CleanList(prefs.ExcludedTags),
	}
	if err := validation.Struct(prefs); err != nil {
		return models.UserPreferences{}, err
	}
	if err := s.deps.Users.UpdatePreferences(ctx, userID, prefs); err != nil {
		return models.UserPreferences{}, err
	}
	if _, err := s.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate cached recommendations", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
	}
	return prefs, nil
}

// Invalidate deletes every cached recommendation set of the user.
func (s *Service) Invalidate(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.NewInvalidRequestError("userId is required")
	}
	return s.deps.Cache.DeletePrefix(ctx, cache.UserPrefix(userID))
}

func (s *Service) PurgeExpiredRecords(ctx context.Context) (int64, error) {
	return s.deps.Records.PurgeExpired(ctx, s.now())
}

func (s *Service) cached(ctx context.Context, key, kind string) (*models.RecommendationResponse, bool) {
	var resp models.RecommendationResponse
	ok, err := cache.GetJSON(ctx, s.deps.Cache, key, &resp)
	if err != nil {
		s.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	metrics.RecommendationsServed.WithLabelValues(string(resp.Metadata.Tier), "cache").Inc()
	s.deps.Metrics.RecordCacheHit(ctx, kind)
	return &resp, true
}

func (s *Service) store(ctx context.Context, key string, resp *models.RecommendationResponse, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.deps.Cache, key, resp, ttl); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}

// persist stores the audit record. The response is already complete, so a
// failure is only logged and counted.
func (s *Service) persist(ctx context.Context, p Params, selected models.Tier, res *scoring.Result, elapsed time.Duration, at time.Time) {
	if s.deps.Records == nil {
		return
	}
	items := make([]models.RecordItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, models.RecordItem{
			ManhwaID: it.Manhwa.ID,
			Score:    it.Score,
			Reason:   it.Reason,
			Weight:   1,
		})
	}
	rec := models.RecommendationRecord{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		Recommendations: items,
		GeneratedBy:     selected,
		IsPersonalized:  selected != models.TierLightweight,
		Filters:         models.RecommendationFilters{Genres: nonNil(p.Genres), Tags: nonNil(p.Tags)},
		Metadata: models.RecordMetadata{
			ProcessingTime:   elapsed.Milliseconds(),
			AlgorithmVersion: s.config.AlgorithmVersion,
			ItemsConsidered:  res.ItemsConsidered,
			ConfidenceScore:  res.Confidence,
		},
		ExpiresAt: at.Add(s.config.RecordTTL),
		CreatedAt: at,
	}
	if err := s.deps.Records.SaveRecord(ctx, rec); err != nil {
		metrics.RecordPersistFailed.Inc()
		s.logger.Warn("failed to persist recommendation record", map[string]interface{}{
			"userId": p.UserID,
			"error":  err,
		})
	}
}

func buildResponse(items []models.ScoredRecommendation, t models.Tier, elapsed time.Duration, total int64, confidence float64) *models.RecommendationResponse {
	if items == nil {
		items = []models.ScoredRecommendation{}
	}
	for i := range items {
		items[i].Manhwa.Genres = nonNil(items[i].Manhwa.Genres)
		items[i].Manhwa.Tags = nonNil(items[i].Manhwa.Tags)
		items[i].Manhwa.ArtStyle = nonNil(items[i].Manhwa.ArtStyle)
	}
	return &models.RecommendationResponse{
		Items: items,
		Metadata: models.ResponseMetadata{
			Tier:            t,
			ProcessingTime:  elapsed.Milliseconds(),
			Count:           len(items),
			Total:           total,
			ConfidenceScore: confidence,
		},
	}
}
