package generaterecommendations

import "manhwa-recommender/internal/models"

type Input struct {
	UserID  string   `json:"userId"`
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
	Genres  []string `json:"genres,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Refresh bool     `json:"refresh,omitempty"`
}

// Output carries the response payload inline. Degraded is set when the
// host stayed saturated and trending items were returned instead.
type Output struct {
	models.RecommendationResponse
	Degraded bool `json:"degraded"`
}
