package domain

// Stats is what the statistics panel renders.
type Stats struct {
	TotalWatchTime float64 `json:"total_watch_time"`
	Formatted      string  `json:"formatted"`
}
