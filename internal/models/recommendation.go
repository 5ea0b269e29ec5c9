package models

import "time"

type Tier string

const (
	TierLightweight Tier = "lightweight"
	TierStandard    Tier = "standard"
	TierEnhanced    Tier = "enhanced"
)

// Rank orders tiers from cheapest to most expensive.
func (t Tier) Rank() int {
	switch t {
	case TierStandard:
		return 1
	case TierEnhanced:
		return 2
	default:
		return 0
	}
}

type Reason string

const (
	ReasonGenreMatch           Reason = "genre_match"
	ReasonSimilarToRead        Reason = "similar_to_read"
	ReasonPopularInPreferences Reason = "popular_in_preferences"
	ReasonTrending             Reason = "trending"
	ReasonArtStyleMatch        Reason = "art_style_match"
	ReasonTagMatch             Reason = "tag_match"
	ReasonUserBehavior         Reason = "user_behavior"
)

// Tier-level confidence scores.
const (
	ConfidenceLightweight = 0.7
	ConfidenceStandard    = 0.85
	ConfidenceEnhanced    = 0.95
)

type ScoredRecommendation struct {
	Manhwa Manhwa  `json:"manhwa"`
	Score  float64 `json:"score"`
	Reason Reason  `json:"reason"`
}

// RecommendationResponse is the payload served by the API, cached, and
// returned from workflow jobs.
type RecommendationResponse struct {
	Items    []ScoredRecommendation `json:"items"`
	Metadata ResponseMetadata       `json:"metadata"`
}

type ResponseMetadata struct {
	Tier            Tier    `json:"tier"`
	ProcessingTime  int64   `json:"processingTime"`
	Count           int     `json:"count"`
	Total           int64   `json:"total"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// RecommendationRecord is the persisted audit copy of one generated set.
type RecommendationRecord struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId"`
	Recommendations []RecordItem          `json:"recommendations"`
	GeneratedBy     Tier                  `json:"generatedBy"`
	IsPersonalized  bool                  `json:"isPersonalized"`
	Filters         RecommendationFilters `json:"filters"`
	Metadata        RecordMetadata        `json:"metadata"`
	ExpiresAt       time.Time             `json:"expiresAt"`
	CreatedAt       time.Time             `json:"createdAt"`
}

type RecordItem struct {
	ManhwaID string  `json:"manhwa"`
	Score    float64 `json:"score"`
	Reason   Reason  `json:"reason"`
	Weight   float64 `json:"weight"`
}

type RecommendationFilters struct {
	Genres []string `json:"genres"`
	Tags   []string `json:"tags"`
}

type RecordMetadata struct {
	ProcessingTime   int64   `json:"processingTime"`
	AlgorithmVersion string  `json:"algorithmVersion"`
	ItemsConsidered  int64   `json:"itemsConsidered"`
	ConfidenceScore  float64 `json:"confidenceScore"`
}
