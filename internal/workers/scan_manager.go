package workers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/services"
	"github.com/flakewatch/flakewatch/pkg/logger"
)

// ScanResult is everything one platform run produced: the per-request
// records and the per-repository plus overall aggregates, feeding both
// sinks (historical dataset and metrics push) from the same source.
type ScanResult struct {
	Platform    models.Platform
	WindowStart time.Time
	WindowEnd   time.Time

	Records    []*models.RequestRecord
	Aggregates []*models.RepositoryAggregate
	Overall    *models.RepositoryAggregate
}

// RecordsFor returns the records belonging to one repository.
func (r *ScanResult) RecordsFor(repoID string) []*models.RequestRecord {
	var records []*models.RequestRecord
	for _, record := range r.Records {
		if record.RepositoryID == repoID {
			records = append(records, record)
		}
	}
	return records
}

// ScanManager fans the configured repositories of one platform out to
// concurrent analyses. Repository computations are disjoint, so the
// only shared state is the collected result set. A repository that
// fails to list degrades to an empty contribution; an authentication
// failure aborts the whole platform run.
type ScanManager struct {
	analyzer    *services.AnalyzerService
	aggregates  *services.AggregateService
	concurrency int
}

func NewScanManager(analyzer *services.AnalyzerService, aggregates *services.AggregateService, concurrency int) *ScanManager {
	return &ScanManager{
		analyzer:    analyzer,
		aggregates:  aggregates,
		concurrency: concurrency,
	}
}

// Run scans every repository for requests merged inside the lookback
// window ending now.
func (m *ScanManager) Run(ctx context.Context, p models.Platform, repoIDs []string, lookbackDays int) (*ScanResult, error) {
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -lookbackDays)

	var mu sync.Mutex
	recordsByRepo := make(map[string][]*models.RequestRecord, len(repoIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, repoID := range repoIDs {
		repoID := repoID
		g.Go(func() error {
			records, err := m.scanRepository(gctx, p, repoID, windowStart)
			if err != nil {
				return err
			}
			mu.Lock()
			recordsByRepo[repoID] = records
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScanResult{
		Platform:    p,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	repoIDsSorted := make([]string, 0, len(recordsByRepo))
	for repoID := range recordsByRepo {
		repoIDsSorted = append(repoIDsSorted, repoID)
	}
	sort.Strings(repoIDsSorted)

	for _, repoID := range repoIDsSorted {
		records := recordsByRepo[repoID]
		result.Records = append(result.Records, records...)
		result.Aggregates = append(result.Aggregates,
			m.aggregates.Aggregate(p, repoID, records, windowStart, windowEnd))
	}

	result.Overall = m.aggregates.Aggregate(p, "all_repositories", result.Records, windowStart, windowEnd)

	return result, nil
}

// scanRepository lists and analyzes the merged requests of one
// repository. Listing failures (other than auth) log and contribute an
// empty record set; the rest of the run continues.
func (m *ScanManager) scanRepository(ctx context.Context, p models.Platform, repoID string, since time.Time) ([]*models.RequestRecord, error) {
	log := logger.WithFields(map[string]interface{}{
		"platform":   p,
		"repository": repoID,
	})

	requests, err := m.analyzer.ListMergedRequests(ctx, repoID, since)
	if err != nil {
		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		log.WithError(err).Error("failed to list merged requests, repository contributes nothing this run")
		return nil, nil
	}

	log.Infof("analyzing %d merged requests", len(requests))

	records := make([]*models.RequestRecord, 0, len(requests))
	for _, req := range requests {
		record, err := m.analyzer.AnalyzeRequest(ctx, repoID, req)
		if err != nil {
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			log.WithField("request", req.Number).WithError(err).Warn("skipping request")
			continue
		}
		if record == nil {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}
