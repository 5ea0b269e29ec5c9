package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// ==========================
// Similarity helpers
// ==========================

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", strs("a"), nil, 0},
		{"equal", strs("a", "b"), strs("b", "a"), 1},
		{"disjoint", strs("a"), strs("b"), 0},
		{"partial", strs("a", "b", "c"), strs("b", "c", "d"), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := toSet(tt.a), toSet(tt.b)
			assert.InDelta(t, tt.want, Jaccard(a, b), 1e-9)
			assert.InDelta(t, Jaccard(a, b), Jaccard(b, a), 1e-9)
		})
	}
}

func TestFinalize(t *testing.T) {
	assert.Equal(t, 0.55, finalize(0.4+0.15))
	assert.Equal(t, 1.0, finalize(1.7))
	assert.Equal(t, 0.0, finalize(-0.2))
	assert.Equal(t, 0.33, finalize(1.0/3))
}

func scored(id string, score float64) models.ScoredRecommendation {
	return models.ScoredRecommendation{Manhwa: models.Manhwa{ID: id}, Score: score}
}

func ids(items []models.ScoredRecommendation) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Manhwa.ID)
	}
	return out
}

func TestBlend(t *testing.T) {
	prior := []models.ScoredRecommendation{scored("p1", 0.9), scored("p2", 0.2), scored("p3", 0.8)}
	extra := []models.ScoredRecommendation{scored("e1", 0.5), scored("e2", 0.4), scored("e3", 0.3), scored("e4", 0.99)}

	t.Run("takes floor of prior share and ceil of the rest", func(t *testing.T) {
		// limit 5 at 40%: 2 prior, 3 extra.
		got := blend(prior, extra, 40, 5)
		assert.Equal(t, []string{"p1", "e1", "e2", "e3", "p2"}, ids(got))
	})

	t.Run("truncates to limit", func(t *testing.T) {
		got := blend(prior, extra, 70, 2)
		// 1 prior, 1 extra.
		assert.Equal(t, []string{"p1", "e1"}, ids(got))
	})

	t.Run("dedupes keeping the higher score", func(t *testing.T) {
		got := blend(
			[]models.ScoredRecommendation{scored("x", 0.1), scored("y", 0.6)},
			[]models.ScoredRecommendation{scored("x", 0.7)},
			50, 4,
		)
		require.Len(t, got, 2)
		assert.Equal(t, "x", got[0].Manhwa.ID)
		assert.Equal(t, 0.7, got[0].Score)
	})

	t.Run("short inputs", func(t *testing.T) {
		assert.Empty(t, blend(nil, nil, 40, 10))
		assert.Len(t, blend(prior[:1], nil, 40, 10), 1)
	})
}

// ==========================
// Lightweight
// ==========================

func TestScoreLightweight_Examples(t *testing.T) {
	prefs := models.UserPreferences{Genres: strs("Action")}

	action := manhwa("a", 5000, strs("Action"), nil, nil)
	score, reason := ScoreLightweight(action, prefs)
	assert.Equal(t, 0.55, score)
	assert.Equal(t, models.ReasonGenreMatch, reason)

	romance := manhwa("r", 9000, strs("Romance"), nil, nil)
	score, reason = ScoreLightweight(romance, prefs)
	assert.Equal(t, 0.27, score)
	assert.Equal(t, models.ReasonTrending, reason)
}

func TestScoreLightweight_Reasons(t *testing.T) {
	prefs := models.UserPreferences{Genres: strs("Action", "Drama"), ArtStyles: strs("Webtoon")}

	tests := []struct {
		name   string
		item   models.Manhwa
		reason models.Reason
		score  float64
	}{
		{"half the genres is not a match", manhwa("1", 0, strs("Action"), nil, nil), models.ReasonTrending, 0.2},
		{"art style match", manhwa("2", 0, strs("Action"), strs("Webtoon"), nil), models.ReasonArtStyleMatch, 0.5},
		{"genre match wins", manhwa("3", 20000, strs("Action", "Drama"), strs("Webtoon"), nil), models.ReasonGenreMatch, 1},
		{"no preferences overlap", manhwa("4", 0, nil, nil, nil), models.ReasonTrending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reason := ScoreLightweight(tt.item, prefs)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.score, score)
		})
	}
}

func TestLightweight_Generate(t *testing.T) {
	catalog := &memCatalog{items: []models.Manhwa{
		manhwa("action", 5000, strs("Action"), nil, nil),
		manhwa("romance", 9000, strs("Romance"), nil, nil),
		manhwa("read", 20000, strs("Action"), nil, nil),
		{ID: "inactive", Genres: strs("Action"), Popularity: models.Popularity{ViewCount: 30000}},
	}}
	history := &memHistory{rows: []ratedRead{{user: "u1", item: "read"}}}

	res, err := NewLightweight(catalog, history).Generate(context.Background(), Request{
		UserID:      "u1",
		Preferences: models.UserPreferences{Genres: strs("Action")},
		Genres:      strs("Action", "Romance"),
		Limit:       10,
	})
	require.NoError(t, err)

	// Popularity order, not score order.
	assert.Equal(t, []string{"romance", "action"}, ids(res.Items))
	assert.Equal(t, 0.27, res.Items[0].Score)
	assert.Equal(t, 0.55, res.Items[1].Score)
	assert.Equal(t, models.ConfidenceLightweight, res.Confidence)
	assert.Equal(t, int64(2), res.ItemsConsidered)
}

func TestLightweightQuery(t *testing.T) {
	prefs := models.UserPreferences{Genres: strs("Action")}

	t.Run("falls back to preferred genres", func(t *testing.T) {
		q := LightweightQuery(Request{Preferences: prefs, Limit: 5, Offset: 10}, strs("r1"))
		assert.Contains(t, q.All, query.In(query.FieldGenres, "Action"))
		assert.Contains(t, q.All, query.NotIn(query.FieldID, "r1"))
		assert.Equal(t, 10, q.Offset)
		assert.Equal(t, 5, q.Limit)
		require.NoError(t, q.Validate())
	})

	t.Run("explicit genres override preferences", func(t *testing.T) {
		q := LightweightQuery(Request{Preferences: prefs, Genres: strs("Horror"), Tags: strs("Gore")}, nil)
		assert.Contains(t, q.All, query.In(query.FieldGenres, "Horror"))
		assert.NotContains(t, q.All, query.In(query.FieldGenres, "Action"))
		assert.Contains(t, q.All, query.In(query.FieldTags, "Gore"))
		assert.False(t, q.HasFilter(query.FieldID))
	})

	t.Run("no preferences leaves only active filter", func(t *testing.T) {
		q := LightweightQuery(Request{}, nil)
		assert.Equal(t, []query.Filter{query.Active()}, q.All)
	})
}

func TestLightweight_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewLightweight(&memCatalog{err: boom}, &memHistory{}).Generate(context.Background(), Request{UserID: "u1", Limit: 5})
	assert.ErrorIs(t, err, boom)

	_, err = NewLightweight(&memCatalog{}, &memHistory{err: boom}).Generate(context.Background(), Request{UserID: "u1", Limit: 5})
	assert.ErrorIs(t, err, boom)
}

// ==========================
// Collaborative
// ==========================

func collaborativeFixture() (*memCatalog, *memHistory) {
	catalog := &memCatalog{items: []models.Manhwa{
		manhwa("r1", 0, nil, nil, nil),
		manhwa("r2", 0, nil, nil, nil),
		manhwa("r3", 0, nil, nil, nil),
		manhwa("r4", 0, nil, nil, nil),
		manhwa("r5", 0, nil, nil, nil),
		manhwa("light", 10000, nil, nil, nil),
		manhwa("c1", 0, nil, nil, nil),
		manhwa("c2", 0, nil, nil, nil),
	}}
	history := &memHistory{rows: []ratedRead{
		{"u1", "r1", 0}, {"u1", "r2", 0}, {"u1", "r3", 0}, {"u1", "r4", 0}, {"u1", "r5", 0},
		{"u2", "r1", 0}, {"u2", "r2", 0}, {"u2", "r3", 0}, {"u2", "c1", 5}, {"u2", "c2", 4},
		{"u3", "r1", 0}, {"u3", "r2", 0}, {"u3", "r3", 0}, {"u3", "c1", 3},
		// shares only two items, not part of the cohort
		{"u4", "r1", 0}, {"u4", "r2", 0}, {"u4", "light", 5},
	}}
	return catalog, history
}

func TestCollaborative_Enrich(t *testing.T) {
	catalog, history := collaborativeFixture()
	req := Request{UserID: "u1", Limit: 10}

	prior, err := NewLightweight(catalog, history).Generate(context.Background(), req)
	require.NoError(t, err)

	res, err := NewCollaborative(catalog, history).Enrich(context.Background(), req, prior)
	require.NoError(t, err)

	// c1: avg 4 over 2 reads -> 0.48 + 0.04; c2: avg 4 over 1 read -> 0.48 + 0.02.
	require.Equal(t, []string{"c1", "c2", "light"}, ids(res.Items))
	assert.Equal(t, 0.52, res.Items[0].Score)
	assert.Equal(t, models.ReasonSimilarToRead, res.Items[0].Reason)
	assert.Equal(t, 0.5, res.Items[1].Score)
	assert.Equal(t, models.ConfidenceStandard, res.Confidence)
	assert.Equal(t, []string{StageCollaborative}, res.Applied)

	for _, it := range res.Items {
		assert.NotContains(t, strs("r1", "r2", "r3", "r4", "r5"), it.Manhwa.ID)
		assert.GreaterOrEqual(t, it.Score, 0.0)
		assert.LessOrEqual(t, it.Score, 1.0)
	}
}

func TestCollaborative_ReturnsPriorUnchanged(t *testing.T) {
	prior := &Result{Items: []models.ScoredRecommendation{scored("x", 0.3)}, Confidence: models.ConfidenceLightweight}

	t.Run("short history", func(t *testing.T) {
		history := &memHistory{rows: []ratedRead{{"u1", "r1", 0}, {"u2", "r1", 5}}}
		res, err := NewCollaborative(&memCatalog{}, history).Enrich(context.Background(), Request{UserID: "u1", Limit: 10}, prior)
		require.NoError(t, err)
		assert.Same(t, prior, res)
	})

	t.Run("no similar users", func(t *testing.T) {
		catalog, history := collaborativeFixture()
		history.rows = history.rows[:5]
		res, err := NewCollaborative(catalog, history).Enrich(context.Background(), Request{UserID: "u1", Limit: 10}, prior)
		require.NoError(t, err)
		assert.Same(t, prior, res)
	})

	t.Run("candidates all inactive", func(t *testing.T) {
		catalog, history := collaborativeFixture()
		for i := range catalog.items {
			if catalog.items[i].ID == "c1" || catalog.items[i].ID == "c2" {
				catalog.items[i].IsActive = false
			}
		}
		res, err := NewCollaborative(catalog, history).Enrich(context.Background(), Request{UserID: "u1", Limit: 10}, prior)
		require.NoError(t, err)
		assert.Same(t, prior, res)
	})
}

func TestScoreCollaborative(t *testing.T) {
	item := manhwa("x", 10000, nil, nil, nil)
	five, zero := 5.0, 0.0

	tests := []struct {
		name string
		stat models.CohortStat
		want float64
	}{
		{"missing stat counts as one unrated read", models.CohortStat{}, 0.36 + 0.02 + 0.2},
		{"unrated defaults to 3", models.CohortStat{ManhwaID: "x", ReadCount: 4}, 0.36 + 0.08 + 0.2},
		{"zero average defaults to 3", models.CohortStat{ManhwaID: "x", AvgRating: &zero, ReadCount: 4}, 0.36 + 0.08 + 0.2},
		{"read count caps at 10", models.CohortStat{ManhwaID: "x", AvgRating: &five, ReadCount: 40}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScoreCollaborative(item, tt.stat), 1e-9)
		})
	}
}

// ==========================
// Content
// ==========================

func contentFixture() (*memCatalog, *memHistory) {
	catalog := &memCatalog{items: []models.Manhwa{
		manhwa("fav", 0, strs("Action", "Fantasy"), strs("Manhwa"), strs("OP")),
		manhwa("meh", 0, strs("Romance"), nil, nil),
		manhwa("x1", 100, strs("Action"), nil, nil),
		manhwa("x2", 200, nil, strs("Manhwa"), nil),
		manhwa("x3", 300, nil, nil, strs("OP")),
	}}
	history := &memHistory{rows: []ratedRead{{"u1", "fav", 5}, {"u1", "meh", 2}}}
	return catalog, history
}

func TestContent_Enrich(t *testing.T) {
	catalog, history := contentFixture()
	req := Request{UserID: "u1", Limit: 10}
	prior := &Result{Confidence: models.ConfidenceLightweight}

	res, err := NewContent(catalog, nil, history).Enrich(context.Background(), req, prior)
	require.NoError(t, err)

	reasons := map[string]models.Reason{}
	scores := map[string]float64{}
	for _, it := range res.Items {
		reasons[it.Manhwa.ID] = it.Reason
		scores[it.Manhwa.ID] = it.Score
	}
	assert.Equal(t, "x2", res.Items[0].Manhwa.ID)
	assert.Equal(t, models.ReasonArtStyleMatch, reasons["x2"])
	assert.Equal(t, models.ReasonGenreMatch, reasons["x1"])
	assert.Equal(t, models.ReasonTagMatch, reasons["x3"])
	assert.Equal(t, 0.4, scores["x2"])
	assert.Equal(t, 0.2, scores["x1"])
	assert.Equal(t, 0.2, scores["x3"])
	assert.NotContains(t, ids(res.Items), "fav")
	assert.NotContains(t, ids(res.Items), "meh")
	assert.Equal(t, models.ConfidenceEnhanced, res.Confidence)
}

func TestContent_UsesSearchCatalogForCandidates(t *testing.T) {
	catalog, history := contentFixture()
	search := &memCatalog{items: catalog.items[2:3]}

	res, err := NewContent(catalog, search, history).Enrich(context.Background(), Request{UserID: "u1", Limit: 10}, &Result{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, ids(res.Items))

	require.Len(t, search.queries, 1)
	q := search.queries[0]
	assert.Len(t, q.Any, 3)
	assert.Equal(t, 20, q.Limit)
	assert.Contains(t, q.All, query.NotIn(query.FieldID, "fav"))
}

func TestContent_NoFavoritesReturnsPrior(t *testing.T) {
	catalog, history := contentFixture()
	history.rows = []ratedRead{{"u1", "meh", 3}}
	prior := &Result{Confidence: models.ConfidenceStandard}

	res, err := NewContent(catalog, nil, history).Enrich(context.Background(), Request{UserID: "u1", Limit: 10}, prior)
	require.NoError(t, err)
	assert.Same(t, prior, res)
}

func TestContentProfile_ReasonTies(t *testing.T) {
	p := newContentProfile([]models.Manhwa{manhwa("f", 0, strs("A"), strs("S"), strs("T"))})

	_, reason := p.Score(manhwa("tie", 0, strs("A"), strs("S"), nil))
	assert.Equal(t, models.ReasonGenreMatch, reason)

	_, reason = p.Score(manhwa("none", 0, nil, nil, nil))
	assert.Equal(t, models.ReasonGenreMatch, reason)

	score, _ := p.Score(manhwa("all", 0, strs("A"), strs("S"), strs("T")))
	assert.Equal(t, 1.0, score)
}

// ==========================
// Pipeline
// ==========================

func TestPipeline_TierSelectsStages(t *testing.T) {
	catalog, history := collaborativeFixture()
	p := NewPipeline(
		NewLightweight(catalog, history),
		logger.NewTestLogger(t),
		NewCollaborative(catalog, history),
		NewContent(catalog, nil, history),
	)
	req := Request{UserID: "u1", Limit: 10}

	light, err := p.Run(context.Background(), models.TierLightweight, req)
	require.NoError(t, err)
	assert.Empty(t, light.Applied)
	assert.Equal(t, models.ConfidenceLightweight, light.Confidence)

	standard, err := p.Run(context.Background(), models.TierStandard, req)
	require.NoError(t, err)
	assert.Equal(t, []string{StageCollaborative}, standard.Applied)

	// u1 rated nothing, so the content stage keeps the standard result.
	enhanced, err := p.Run(context.Background(), models.TierEnhanced, req)
	require.NoError(t, err)
	assert.Equal(t, standard.Items, enhanced.Items)
	assert.Equal(t, models.ConfidenceStandard, enhanced.Confidence)
}

func TestPipeline_StageFailureDegrades(t *testing.T) {
	catalog, history := contentFixture()
	base := NewLightweight(catalog, history)
	before := testutil.ToFloat64(metrics.StageDegraded.WithLabelValues("flaky"))

	p := NewPipeline(base, logger.NewTestLogger(t), failingStage{name: "flaky"}, NewContent(catalog, nil, history))
	req := Request{UserID: "u1", Limit: 10}

	standard, err := p.Run(context.Background(), models.TierStandard, req)
	require.NoError(t, err)
	light, err := base.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, light, standard)

	// The content stage still runs on the lightweight result.
	enhanced, err := p.Run(context.Background(), models.TierEnhanced, req)
	require.NoError(t, err)
	assert.Equal(t, []string{StageContent}, enhanced.Applied)
	assert.Equal(t, models.ConfidenceEnhanced, enhanced.Confidence)

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.StageDegraded.WithLabelValues("flaky")))
}

func TestPipeline_BaseFailureIsFatal(t *testing.T) {
	boom := errors.New("catalog offline")
	p := NewPipeline(NewLightweight(&memCatalog{err: boom}, &memHistory{}), logger.NewTestLogger(t))

	_, err := p.Run(context.Background(), models.TierEnhanced, Request{UserID: "u1", Limit: 10})
	assert.ErrorIs(t, err, boom)
}
