// Package scoring builds recommendation lists. A base source produces the
// lightweight list and each enrichment stage refines the previous result;
// the selected tier decides how many stages run.
package scoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// CatalogReader is satisfied by the PostgreSQL store and the Elasticsearch
// catalog.
type CatalogReader interface {
	Find(ctx context.Context, q query.Catalog) ([]models.Manhwa, error)
	Count(ctx context.Context, q query.Catalog) (int64, error)
}

type HistoryReader interface {
	ReadItemIDs(ctx context.Context, userID string) ([]string, error)
	CountHistory(ctx context.Context, userID string) (int, error)
	SimilarUsers(ctx context.Context, userID string, itemIDs []string, minShared, limit int) ([]models.SimilarUser, error)
	ItemsReadBy(ctx context.Context, userIDs []string) ([]string, error)
	CohortStats(ctx context.Context, userIDs, itemIDs []string) ([]models.CohortStat, error)
	Favorites(ctx context.Context, userID string, minRating int) ([]string, error)
}

type Request struct {
	UserID      string
	Preferences models.UserPreferences
	Genres      []string
	Tags        []string
	Limit       int
	Offset      int
}

type Result struct {
	Items           []models.ScoredRecommendation
	Confidence      float64
	// Total counts catalog matches for the base query; ItemsConsidered adds
	// the candidates each stage scored.
	Total           int64
	ItemsConsidered int64
	// Applied lists the stages that changed the list.
	Applied         []string
}

type Source interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Stage refines a prior result. It must not modify prior; returning prior
// itself means "no change".
type Stage interface {
	Name() string
	Enrich(ctx context.Context, req Request, prior *Result) (*Result, error)
}

type Pipeline struct {
	base   Source
	stages []Stage
	logger logger.Logger
	tracer trace.Tracer
}

// NewPipeline orders stages from cheapest to most expensive; tier rank n
// runs the first n stages.
func NewPipeline(base Source, log logger.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{
		base:   base,
		stages: stages,
		logger: log.WithFields(map[string]interface{}{"component": "scoring-pipeline"}),
		tracer: otel.Tracer("manhwa-recommender/scoring"),
	}
}

func (p *Pipeline) WithTracer(t trace.Tracer) *Pipeline {
	p.tracer = t
	return p
}

// Run fails only when the base source fails. A failing stage is logged and
// skipped, leaving the prior result in place.
func (p *Pipeline) Run(ctx context.Context, tier models.Tier, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.base", trace.WithAttributes(
		attribute.String("tier", string(tier)),
		attribute.Int("limit", req.Limit),
	))
	res, err := p.base.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "base source failed")
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("items", len(res.Items)))
	span.End()

	for i := 0; i < tier.Rank() && i < len(p.stages); i++ {
		stage := p.stages[i]
		res = p.runStage(ctx, stage, req, res)
	}
	return res, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, req Request, prior *Result) *Result {
	ctx, span := p.tracer.Start(ctx, "pipeline."+stage.Name())
	defer span.End()

	next, err := stage.Enrich(ctx, req, prior)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage degraded")
		metrics.StageDegraded.WithLabelValues(stage.Name()).Inc()
		p.logger.Warn("stage failed, keeping prior result", map[string]interface{}{
			"stage":  stage.Name(),
			"userId": req.UserID,
			"error":  err,
		})
		return prior
	}
	if next == nil {
		return prior
	}
	span.SetAttributes(attribute.Int("items", len(next.Items)))
	return next
}
