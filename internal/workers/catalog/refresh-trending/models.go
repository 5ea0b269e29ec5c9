package refreshtrending

type Input struct {
	Limit int `json:"limit,omitempty"`
}

type Output struct {
	Count  int   `json:"count"`
	Total  int64 `json:"total"`
	Purged int64 `json:"purged"`
}
