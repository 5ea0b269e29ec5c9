package models

import "time"

type ReadingStatus string

const (
	ReadingStatusReading    ReadingStatus = "Reading"
	ReadingStatusCompleted  ReadingStatus = "Completed"
	ReadingStatusOnHold     ReadingStatus = "On Hold"
	ReadingStatusDropped    ReadingStatus = "Dropped"
	ReadingStatusPlanToRead ReadingStatus = "Plan to Read"
)

// ReadingHistoryEntry links one user to one catalog item; (UserID, ManhwaID)
// is unique.
type ReadingHistoryEntry struct {
	UserID          string        `json:"userId"`
	ManhwaID        string        `json:"manhwaId"`
	Rating          *int          `json:"rating,omitempty"`
	LastChapterRead int           `json:"lastChapterRead"`
	ReadingStatus   ReadingStatus `json:"readingStatus"`
	OverallProgress int           `json:"overallProgress"`
	Favorite        bool          `json:"favorite"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// SimilarUser is another reader who shares read items with the target user.
type SimilarUser struct {
	UserID      string `json:"userId"`
	SharedCount int    `json:"sharedCount"`
}

// CohortStat aggregates how a group of similar users rated one item.
// AvgRating is nil when nobody in the cohort rated it.
type CohortStat struct {
	ManhwaID  string   `json:"manhwaId"`
	AvgRating *float64 `json:"avgRating,omitempty"`
	ReadCount int      `json:"readCount"`
}
