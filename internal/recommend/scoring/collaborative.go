package scoring

import (
	"context"
	"fmt"

	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

const (
	StageCollaborative = "collaborative"

	collabMinHistory  = 5
	collabMinShared   = 3
	collabCohortLimit = 20
	collabPriorPct    = 40
	defaultCohortAvg  = 3.0
)

// Collaborative blends in items read by users whose history overlaps the
// requesting user's.
type Collaborative struct {
	catalog CatalogReader
	history HistoryReader
}

func NewCollaborative(catalog CatalogReader, history HistoryReader) *Collaborative {
	return &Collaborative{catalog: catalog, history: history}
}

func (c *Collaborative) Name() string { return StageCollaborative }

func (c *Collaborative) Enrich(ctx context.Context, req Request, prior *Result) (*Result, error) {
	count, err := c.history.CountHistory(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	if count < collabMinHistory {
		return prior, nil
	}

	readIDs, err := c.history.ReadItemIDs(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	cohort, err := c.history.SimilarUsers(ctx, req.UserID, readIDs, collabMinShared, collabCohortLimit)
	if err != nil {
		return nil, fmt.Errorf("similar users: %w", err)
	}
	if len(cohort) == 0 {
		return prior, nil
	}

	cohortIDs := make([]string, 0, len(cohort))
	for _, u := range cohort {
		cohortIDs = append(cohortIDs, u.UserID)
	}
	cohortItems, err := c.history.ItemsReadBy(ctx, cohortIDs)
	if err != nil {
		return nil, fmt.Errorf("cohort items: %w", err)
	}

	read := toSet(readIDs)
	pool := make([]string, 0, len(cohortItems))
	for _, id := range cohortItems {
		if _, ok := read[id]; !ok {
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		return prior, nil
	}

	q := query.Catalog{}
	q.Where(query.Active(), query.In(query.FieldID, pool...))
	candidates, err := c.catalog.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	if len(candidates) == 0 {
		return prior, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, m := range candidates {
		ids = append(ids, m.ID)
	}
	stats, err := c.history.CohortStats(ctx, cohortIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("cohort stats: %w", err)
	}
	byItem := make(map[string]models.CohortStat, len(stats))
	for _, s := range stats {
		byItem[s.ManhwaID] = s
	}

	scored := make([]models.ScoredRecommendation, 0, len(candidates))
	for _, m := range candidates {
		scored = append(scored, models.ScoredRecommendation{
			Manhwa: m,
			Score:  ScoreCollaborative(m, byItem[m.ID]),
			Reason: models.ReasonSimilarToRead,
		})
	}
	byScore(scored)

	return &Result{
		Items:           blend(prior.Items, scored, collabPriorPct, req.Limit),
		Confidence:      models.ConfidenceStandard,
		Total:           prior.Total,
		ItemsConsidered: prior.ItemsConsidered + int64(len(candidates)),
		Applied:         append(append([]string{}, prior.Applied...), StageCollaborative),
	}, nil
}

// ScoreCollaborative is 0.6 cohort rating + 0.2 cohort reach + 0.2
// popularity. A missing stat counts as one unrated read.
func ScoreCollaborative(m models.Manhwa, stat models.CohortStat) float64 {
	avg := defaultCohortAvg
	if stat.AvgRating != nil && *stat.AvgRating > 0 {
		avg = *stat.AvgRating
	}
	readCount := stat.ReadCount
	if stat.ManhwaID == "" {
		readCount = 1
	}
	reach := float64(readCount) / 10
	if reach > 1 {
		reach = 1
	}
	return finalize(0.6*avg/5 + 0.2*reach + 0.2*popularity(m))
}
