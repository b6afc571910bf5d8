package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flakewatch/flakewatch/internal/models"
)

func TestAggregateEmptySet(t *testing.T) {
	service := NewAggregateService()
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()

	agg := service.Aggregate(models.PlatformGitHub, "acme/widgets", nil, start, end)

	assert.Equal(t, 0, agg.TotalRequests)
	assert.Equal(t, 0, agg.TotalRetests)
	assert.Equal(t, 0, agg.RequestsWithRetests)
	assert.Equal(t, 0.0, agg.RetestRatePercent)
	assert.Equal(t, 0.0, agg.AvgRetestsPerRequest)
	assert.Equal(t, start, agg.WindowStart)
	assert.Equal(t, end, agg.WindowEnd)
}

func TestAggregateStatistics(t *testing.T) {
	service := NewAggregateService()
	now := time.Now()

	// R1: three commits, each ran exactly once. R2: one commit ran
	// three times, one ran once.
	r1 := &models.RequestRecord{
		Platform:      models.PlatformGitHub,
		RepositoryID:  "acme/widgets",
		RequestNumber: 1,
		MergedAt:      now,
		CommitCount:   3,
		RetestCount:   0,
	}
	r2 := &models.RequestRecord{
		Platform:      models.PlatformGitHub,
		RepositoryID:  "acme/widgets",
		RequestNumber: 2,
		MergedAt:      now,
		CommitCount:   2,
		RetestCount:   2,
	}

	agg := service.Aggregate(models.PlatformGitHub, "acme/widgets",
		[]*models.RequestRecord{r1, r2}, now.Add(-24*time.Hour), now)

	assert.Equal(t, 2, agg.TotalRequests)
	assert.Equal(t, 2, agg.TotalRetests)
	assert.Equal(t, 1, agg.RequestsWithRetests)
	assert.Equal(t, 50.0, agg.RetestRatePercent)
	assert.Equal(t, 1.0, agg.AvgRetestsPerRequest)
}

func TestAggregateAllClean(t *testing.T) {
	service := NewAggregateService()
	now := time.Now()

	records := []*models.RequestRecord{
		{RequestNumber: 1, CommitCount: 1, RetestCount: 0, MergedAt: now},
		{RequestNumber: 2, CommitCount: 4, RetestCount: 0, MergedAt: now},
	}

	agg := service.Aggregate(models.PlatformGitLab, "group/project", records, now.Add(-24*time.Hour), now)

	assert.Equal(t, 2, agg.TotalRequests)
	assert.Equal(t, 0, agg.TotalRetests)
	assert.Equal(t, 0, agg.RequestsWithRetests)
	assert.Equal(t, 0.0, agg.RetestRatePercent)
	assert.Equal(t, 0.0, agg.AvgRetestsPerRequest)
}
