package models

import "time"

type ManhwaStatus string

const (
	StatusOngoing   ManhwaStatus = "Ongoing"
	StatusCompleted ManhwaStatus = "Completed"
	StatusHiatus    ManhwaStatus = "Hiatus"
	StatusCancelled ManhwaStatus = "Cancelled"
)

// Manhwa is a catalog item. The scorer only reads it.
type Manhwa struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	CoverImage  string       `json:"coverImage,omitempty"`
	Author      string       `json:"author,omitempty"`
	Artist      string       `json:"artist,omitempty"`
	Status      ManhwaStatus `json:"status,omitempty"`
	ReleaseYear int          `json:"releaseYear,omitempty"`
	Genres      []string     `json:"genres"`
	Tags        []string     `json:"tags"`
	ArtStyle    []string     `json:"artStyle"`
	Popularity  Popularity   `json:"popularity"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Popularity struct {
	ViewCount     int64   `json:"viewCount"`
	FavoriteCount int64   `json:"favoriteCount"`
	Rating        float64 `json:"rating"`
	RatingCount   int64   `json:"ratingCount"`
}
