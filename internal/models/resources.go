package models

import "time"

// ResourceSnapshot holds integer usage percentages taken at Timestamp.
type ResourceSnapshot struct {
	CPU           int       `json:"cpu"`
	Memory        int       `json:"memory"`
	ProcessMemory int       `json:"processMemory"`
	Timestamp     time.Time `json:"timestamp"`
}

type UsageEstimate struct {
	CPU                  int     `json:"cpu"`
	Memory               int     `json:"memory"`
	EstimatedCreditsUsed float64 `json:"estimatedCreditsUsed"`
	IsApproachingLimit   bool    `json:"isApproachingLimit"`
	RecommendedTier      Tier    `json:"recommendedTier"`
}
