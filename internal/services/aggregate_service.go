package services

import (
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

// AggregateService folds the RequestRecords of one repository scan
// window into summary statistics. Pure computation, no I/O.
type AggregateService struct{}

func NewAggregateService() *AggregateService {
	return &AggregateService{}
}

// Aggregate computes the RepositoryAggregate for a record set. An empty
// set yields an all-zero aggregate; rates and averages never divide by
// zero.
func (s *AggregateService) Aggregate(p models.Platform, repoID string, records []*models.RequestRecord, windowStart, windowEnd time.Time) *models.RepositoryAggregate {
	agg := &models.RepositoryAggregate{
		Platform:     p,
		RepositoryID: repoID,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
	}

	for _, r := range records {
		agg.TotalRequests++
		agg.TotalRetests += r.RetestCount
		if r.RetestCount > 0 {
			agg.RequestsWithRetests++
		}
	}

	if agg.TotalRequests > 0 {
		agg.RetestRatePercent = 100 * float64(agg.RequestsWithRetests) / float64(agg.TotalRequests)
		agg.AvgRetestsPerRequest = float64(agg.TotalRetests) / float64(agg.TotalRequests)
	}

	return agg
}
