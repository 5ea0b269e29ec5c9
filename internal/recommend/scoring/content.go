package scoring

import (
	"context"
	"fmt"

	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

const (
	StageContent = "content"

	favoriteMinRating = 4
	contentCandidates = 20
	contentPriorPct   = 70
)

// Content blends in items whose genres, art styles and tags resemble the
// user's highly rated items. Candidates come from search, which may be the
// relational catalog or the search index.
type Content struct {
	catalog CatalogReader
	search  CatalogReader
	history HistoryReader
}

func NewContent(catalog, search CatalogReader, history HistoryReader) *Content {
	if search == nil {
		search = catalog
	}
	return &Content{catalog: catalog, search: search, history: history}
}

func (c *Content) Name() string { return StageContent }

func (c *Content) Enrich(ctx context.Context, req Request, prior *Result) (*Result, error) {
	favIDs, err := c.history.Favorites(ctx, req.UserID, favoriteMinRating)
	if err != nil {
		return nil, fmt.Errorf("favorites: %w", err)
	}
	if len(favIDs) == 0 {
		return prior, nil
	}

	fq := query.Catalog{}
	fq.Where(query.In(query.FieldID, favIDs...))
	favorites, err := c.catalog.Find(ctx, fq)
	if err != nil {
		return nil, fmt.Errorf("favorite items: %w", err)
	}

	profile := newContentProfile(favorites)
	candidates, err := c.search.Find(ctx, ContentQuery(profile, favIDs))
	if err != nil {
		return nil, fmt.Errorf("content candidates: %w", err)
	}
	if len(candidates) == 0 {
		return prior, nil
	}

	scored := make([]models.ScoredRecommendation, 0, len(candidates))
	for _, m := range candidates {
		score, reason := profile.Score(m)
		scored = append(scored, models.ScoredRecommendation{Manhwa: m, Score: score, Reason: reason})
	}
	byScore(scored)

	return &Result{
		Items:           blend(prior.Items, scored, contentPriorPct, req.Limit),
		Confidence:      models.ConfidenceEnhanced,
		Total:           prior.Total,
		ItemsConsidered: prior.ItemsConsidered + int64(len(candidates)),
		Applied:         append(append([]string{}, prior.Applied...), StageContent),
	}, nil
}

// ContentProfile is the union of features across a user's favorites.
type ContentProfile struct {
	Genres    map[string]struct{}
	ArtStyles map[string]struct{}
	Tags      map[string]struct{}
}

func newContentProfile(favorites []models.Manhwa) ContentProfile {
	p := ContentProfile{
		Genres:    map[string]struct{}{},
		ArtStyles: map[string]struct{}{},
		Tags:      map[string]struct{}{},
	}
	for _, m := range favorites {
		for _, g := range m.Genres {
			p.Genres[g] = struct{}{}
		}
		for _, a := range m.ArtStyle {
			p.ArtStyles[a] = struct{}{}
		}
		for _, t := range m.Tags {
			p.Tags[t] = struct{}{}
		}
	}
	return p
}

// Score weighs Jaccard similarity 0.4 genres, 0.4 art styles, 0.2 tags.
func (p ContentProfile) Score(m models.Manhwa) (float64, models.Reason) {
	genreSim := Jaccard(toSet(m.Genres), p.Genres)
	artSim := Jaccard(toSet(m.ArtStyle), p.ArtStyles)
	tagSim := Jaccard(toSet(m.Tags), p.Tags)

	reason := models.ReasonGenreMatch
	switch {
	case artSim > genreSim && artSim > tagSim:
		reason = models.ReasonArtStyleMatch
	case tagSim > genreSim && tagSim > artSim:
		reason = models.ReasonTagMatch
	}
	return finalize(0.4*genreSim + 0.4*artSim + 0.2*tagSim), reason
}

// ContentQuery selects active non-favorite items sharing any genre, art
// style or tag with the profile.
func ContentQuery(p ContentProfile, favoriteIDs []string) query.Catalog {
	q := query.Catalog{}
	q.Where(query.Active(), query.NotIn(query.FieldID, favoriteIDs...))
	q.Or(
		query.In(query.FieldGenres, setToSlice(p.Genres)...),
		query.In(query.FieldArtStyles, setToSlice(p.ArtStyles)...),
		query.In(query.FieldTags, setToSlice(p.Tags)...),
	)
	q.Page(0, contentCandidates)
	return q
}
