package scoring

import (
	"context"
	"sort"

	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// memCatalog evaluates catalog queries against an in-memory slice.
type memCatalog struct {
	items   []models.Manhwa
	err     error
	queries []query.Catalog
}

func (c *memCatalog) Find(_ context.Context, q query.Catalog) ([]models.Manhwa, error) {
	c.queries = append(c.queries, q)
	if c.err != nil {
		return nil, c.err
	}
	matched := c.match(q)
	for _, s := range q.Sort {
		if s.Field == query.FieldViewCount {
			sort.SliceStable(matched, func(i, j int) bool {
				return matched[i].Popularity.ViewCount > matched[j].Popularity.ViewCount
			})
		}
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (c *memCatalog) Count(_ context.Context, q query.Catalog) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return int64(len(c.match(q))), nil
}

func (c *memCatalog) match(q query.Catalog) []models.Manhwa {
	var out []models.Manhwa
	for _, m := range c.items {
		ok := true
		for _, f := range q.All {
			if !matches(m, f) {
				ok = false
				break
			}
		}
		if ok && len(q.Any) > 0 {
			ok = false
			for _, f := range q.Any {
				if matches(m, f) {
					ok = true
					break
				}
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

func matches(m models.Manhwa, f query.Filter) bool {
	var have []string
	switch f.Field {
	case query.FieldIsActive:
		return m.IsActive == f.Value.(bool)
	case query.FieldID:
		have = []string{m.ID}
	case query.FieldGenres:
		have = m.Genres
	case query.FieldTags:
		have = m.Tags
	case query.FieldArtStyles:
		have = m.ArtStyle
	}
	shared := false
	want := toSet(f.Values)
	for _, h := range have {
		if _, ok := want[h]; ok {
			shared = true
		}
	}
	if f.Op == query.OpNotIn {
		return !shared
	}
	return shared
}

type ratedRead struct {
	user   string
	item   string
	rating int
}

// memHistory answers history queries from a list of (user, item, rating)
// rows. A zero rating means unrated.
type memHistory struct {
	rows []ratedRead
	err  error
}

func (h *memHistory) ReadItemIDs(_ context.Context, userID string) ([]string, error) {
	if h.err != nil {
		return nil, h.err
	}
	var ids []string
	for _, r := range h.rows {
		if r.user == userID {
			ids = append(ids, r.item)
		}
	}
	return ids, nil
}

func (h *memHistory) CountHistory(ctx context.Context, userID string) (int, error) {
	ids, err := h.ReadItemIDs(ctx, userID)
	return len(ids), err
}

func (h *memHistory) SimilarUsers(_ context.Context, userID string, itemIDs []string, minShared, limit int) ([]models.SimilarUser, error) {
	if h.err != nil {
		return nil, h.err
	}
	read := toSet(itemIDs)
	shared := map[string]int{}
	for _, r := range h.rows {
		if r.user == userID {
			continue
		}
		if _, ok := read[r.item]; ok {
			shared[r.user]++
		}
	}
	var out []models.SimilarUser
	for u, n := range shared {
		if n >= minShared {
			out = append(out, models.SimilarUser{UserID: u, SharedCount: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SharedCount != out[j].SharedCount {
			return out[i].SharedCount > out[j].SharedCount
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memHistory) ItemsReadBy(_ context.Context, userIDs []string) ([]string, error) {
	users := toSet(userIDs)
	seen := map[string]struct{}{}
	for _, r := range h.rows {
		if _, ok := users[r.user]; ok {
			seen[r.item] = struct{}{}
		}
	}
	return setToSlice(seen), nil
}

func (h *memHistory) CohortStats(_ context.Context, userIDs, itemIDs []string) ([]models.CohortStat, error) {
	users, items := toSet(userIDs), toSet(itemIDs)
	type agg struct{ sum, rated, reads int }
	by := map[string]*agg{}
	for _, r := range h.rows {
		_, u := users[r.user]
		_, i := items[r.item]
		if !u || !i {
			continue
		}
		a := by[r.item]
		if a == nil {
			a = &agg{}
			by[r.item] = a
		}
		a.reads++
		if r.rating > 0 {
			a.sum += r.rating
			a.rated++
		}
	}
	var out []models.CohortStat
	for id, a := range by {
		stat := models.CohortStat{ManhwaID: id, ReadCount: a.reads}
		if a.rated > 0 {
			avg := float64(a.sum) / float64(a.rated)
			stat.AvgRating = &avg
		}
		out = append(out, stat)
	}
	return out, nil
}

func (h *memHistory) Favorites(_ context.Context, userID string, minRating int) ([]string, error) {
	if h.err != nil {
		return nil, h.err
	}
	var ids []string
	for _, r := range h.rows {
		if r.user == userID && r.rating >= minRating {
			ids = append(ids, r.item)
		}
	}
	return ids, nil
}

// failingStage always errors.
type failingStage struct{ name string }

func (f failingStage) Name() string { return f.name }

func (f failingStage) Enrich(context.Context, Request, *Result) (*Result, error) {
	return nil, context.DeadlineExceeded
}

func manhwa(id string, views int64, genres, art, tags []string) models.Manhwa {
	return models.Manhwa{
		ID:         id,
		Title:      id,
		Genres:     genres,
		ArtStyle:   art,
		Tags:       tags,
		IsActive:   true,
		Popularity: models.Popularity{ViewCount: views},
	}
}

func strs(v ...string) []string { return v }
