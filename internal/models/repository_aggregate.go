package models

import "time"

// RepositoryAggregate is the per-repository summary for one scan
// window. Derived from the RequestRecord set in scope and recomputed
// every run; never persisted independently of its source window.
type RepositoryAggregate struct {
	Platform             Platform  `json:"platform"`
	RepositoryID         string    `json:"repository_id"`
	WindowStart          time.Time `json:"window_start"`
	WindowEnd            time.Time `json:"window_end"`
	TotalRequests        int       `json:"total_requests"`
	TotalRetests         int       `json:"total_retests"`
	RequestsWithRetests  int       `json:"requests_with_retests"`
	RetestRatePercent    float64   `json:"retest_rate_percent"`
	AvgRetestsPerRequest float64   `json:"avg_retests_per_request"`
}
