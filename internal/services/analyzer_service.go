package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/platform"
	"github.com/flakewatch/flakewatch/pkg/logger"
)

// defaultFetchAttempts bounds retries on transient fetch failures.
const defaultFetchAttempts = 3

// AnalyzerService turns one merged request into a RequestRecord by
// walking its commits and summing per-commit retest contributions.
// Per-commit failures degrade to a zero contribution instead of
// aborting the run: partial data beats a dropped record.
type AnalyzerService struct {
	source platform.Source

	maxAttempts     uint64
	initialInterval time.Duration
}

func NewAnalyzerService(source platform.Source) *AnalyzerService {
	return &AnalyzerService{
		source:          source,
		maxAttempts:     defaultFetchAttempts,
		initialInterval: 500 * time.Millisecond,
	}
}

// ListMergedRequests lists the merged requests of a repository in the
// scan window, retrying transient failures.
func (s *AnalyzerService) ListMergedRequests(ctx context.Context, repoID string, since time.Time) ([]*platform.MergedRequest, error) {
	var requests []*platform.MergedRequest
	err := s.retryFetch(ctx, func() error {
		var err error
		requests, err = s.source.ListMergedRequests(ctx, repoID, since)
		return err
	})
	return requests, err
}

// AnalyzeRequest produces the RequestRecord for one merged request.
// Returns (nil, nil) when the platform reports no commits for the
// request; every emitted record has commit_count >= 1.
func (s *AnalyzerService) AnalyzeRequest(ctx context.Context, repoID string, req *platform.MergedRequest) (*models.RequestRecord, error) {
	log := logger.WithFields(map[string]interface{}{
		"platform":   s.source.Platform(),
		"repository": repoID,
		"request":    req.Number,
	})

	var shas []string
	err := s.retryFetch(ctx, func() error {
		var err error
		shas, err = s.source.ListCommits(ctx, repoID, req.Number)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(shas) == 0 {
		log.Warn("merged request has no commits, skipping")
		return nil, nil
	}

	retests := 0
	for _, sha := range shas {
		run, err := s.commitRun(ctx, repoID, sha)
		if err != nil {
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			// NotFound or exhausted retries: the commit contributes
			// zero rather than dropping the whole record.
			log.WithField("sha", sha).WithError(err).Warn("could not count run instances, commit contributes 0")
			continue
		}
		retests += run.Retests()
	}

	return &models.RequestRecord{
		Platform:      s.source.Platform(),
		RepositoryID:  repoID,
		RequestNumber: req.Number,
		Author:        req.Author,
		MergedAt:      req.MergedAt,
		CommitCount:   len(shas),
		RetestCount:   retests,
		URL:           req.URL,
	}, nil
}

// commitRun fetches the instance count for one sha with bounded retry.
func (s *AnalyzerService) commitRun(ctx context.Context, repoID, sha string) (models.CommitRun, error) {
	var count int
	err := s.retryFetch(ctx, func() error {
		var err error
		count, err = s.source.InstanceCount(ctx, repoID, sha)
		return err
	})
	if err != nil {
		return models.CommitRun{}, err
	}
	return models.CommitRun{SHA: sha, InstanceCount: count}, nil
}

// retryFetch runs op with exponential backoff, retrying only transient
// fetch errors up to the bounded attempt count.
func (s *AnalyzerService) retryFetch(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.maxAttempts-1), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var transient *models.TransientFetchError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
