package scoring

import (
	"context"

	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// Lightweight ranks unread catalog items by preference overlap and
// popularity. It is the base of every tier.
type Lightweight struct {
	catalog CatalogReader
	history HistoryReader
}

func NewLightweight(catalog CatalogReader, history HistoryReader) *Lightweight {
	return &Lightweight{catalog: catalog, history: history}
}

func (l *Lightweight) Generate(ctx context.Context, req Request) (*Result, error) {
	readIDs, err := l.history.ReadItemIDs(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	q := LightweightQuery(req, readIDs)
	total, err := l.catalog.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := l.catalog.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredRecommendation, 0, len(items))
	for _, m := range items {
		score, reason := ScoreLightweight(m, req.Preferences)
		scored = append(scored, models.ScoredRecommendation{Manhwa: m, Score: score, Reason: reason})
	}

	return &Result{
		Items:           scored,
		Confidence:      models.ConfidenceLightweight,
		Total:           total,
		ItemsConsidered: total,
	}, nil
}

// LightweightQuery selects active unread items, filtered by the explicit
// genres and tags or, without explicit genres, by the preferred ones.
func LightweightQuery(req Request, readIDs []string) query.Catalog {
	q := query.Catalog{}
	q.Where(query.Active())

	if len(req.Genres) > 0 {
		q.Where(query.In(query.FieldGenres, req.Genres...))
	} else if len(req.Preferences.Genres) > 0 {
		q.Where(query.In(query.FieldGenres, req.Preferences.Genres...))
	}
	q.Where(query.In(query.FieldTags, req.Tags...))
	q.Where(query.NotIn(query.FieldID, readIDs...))

	q.OrderBy(query.FieldViewCount, true).Page(req.Offset, req.Limit)
	return q
}

// ScoreLightweight is 0.4 genre ratio + 0.3 art style ratio + 0.3
// popularity, where ratios are the share of preferred values the item has.
func ScoreLightweight(m models.Manhwa, prefs models.UserPreferences) (float64, models.Reason) {
	genreRatio := matchRatio(m.Genres, prefs.Genres)
	artRatio := matchRatio(m.ArtStyle, prefs.ArtStyles)
	score := 0.4*genreRatio + 0.3*artRatio + 0.3*popularity(m)

	reason := models.ReasonTrending
	switch {
	case genreRatio > 0.5:
		reason = models.ReasonGenreMatch
	case artRatio > 0.5:
		reason = models.ReasonArtStyleMatch
	}
	return finalize(score), reason
}
