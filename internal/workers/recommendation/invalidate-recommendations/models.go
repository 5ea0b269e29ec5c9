package invalidaterecommendations

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Deleted     int64 `json:"deleted"`
	Invalidated bool  `json:"invalidated"`
}
