package scoring

import (
	"math"
	"sort"

	"manhwa-recommender/internal/models"
)

// Jaccard is |a∩b| / |a∪b|, and 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func toSet(values ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, vs := range values {
		for _, v := range vs {
			set[v] = struct{}{}
		}
	}
	return set
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// matchRatio is the share of preferred values present in have.
func matchRatio(have, preferred []string) float64 {
	if len(preferred) == 0 {
		return 0
	}
	haveSet := toSet(have)
	matched := 0
	for _, p := range preferred {
		if _, ok := haveSet[p]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(preferred))
}

func popularity(m models.Manhwa) float64 {
	return math.Min(1, float64(m.Popularity.ViewCount)/10000)
}

// finalize clamps to [0,1] and rounds to two decimals.
func finalize(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*100) / 100
}

// blend keeps the first floor(priorPct% of limit) prior items and the first
// ceil((100-priorPct)% of limit) extra items, drops duplicate ids keeping the
// higher score, then sorts by score descending and truncates to limit.
func blend(prior, extra []models.ScoredRecommendation, priorPct, limit int) []models.ScoredRecommendation {
	keepPrior := priorPct * limit / 100
	keepExtra := ((100-priorPct)*limit + 99) / 100

	merged := make([]models.ScoredRecommendation, 0, keepPrior+keepExtra)
	index := make(map[string]int, keepPrior+keepExtra)
	add := func(items []models.ScoredRecommendation, n int) {
		if n > len(items) {
			n = len(items)
		}
		for _, it := range items[:n] {
			if i, ok := index[it.Manhwa.ID]; ok {
				if it.Score > merged[i].Score {
					merged[i] = it
				}
				continue
			}
			index[it.Manhwa.ID] = len(merged)
			merged = append(merged, it)
		}
	}
	add(prior, keepPrior)
	add(extra, keepExtra)

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// byScore sorts candidates best first, breaking ties by view count.
func byScore(items []models.ScoredRecommendation) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Manhwa.Popularity.ViewCount > items[j].Manhwa.Popularity.ViewCount
	})
}
