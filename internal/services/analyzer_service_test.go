package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/platform"
)

// fakeSource implements platform.Source with per-test hooks.
type fakeSource struct {
	listRequests  func(repoID string, since time.Time) ([]*platform.MergedRequest, error)
	listCommits   func(repoID string, number int) ([]string, error)
	instanceCount func(repoID, sha string) (int, error)
}

func (f *fakeSource) Platform() models.Platform {
	return models.PlatformGitHub
}

func (f *fakeSource) ListMergedRequests(ctx context.Context, repoID string, since time.Time) ([]*platform.MergedRequest, error) {
	return f.listRequests(repoID, since)
}

func (f *fakeSource) ListCommits(ctx context.Context, repoID string, number int) ([]string, error) {
	return f.listCommits(repoID, number)
}

func (f *fakeSource) InstanceCount(ctx context.Context, repoID string, sha string) (int, error) {
	return f.instanceCount(repoID, sha)
}

func newTestAnalyzer(source platform.Source) *AnalyzerService {
	analyzer := NewAnalyzerService(source)
	analyzer.initialInterval = time.Millisecond
	return analyzer
}

func mergedRequest(number int) *platform.MergedRequest {
	return &platform.MergedRequest{
		Number:   number,
		Author:   "alice",
		MergedAt: time.Now().UTC(),
		URL:      "https://example.com/pull/1",
	}
}

func TestAnalyzeRequestSingleRunsAreNotRetests(t *testing.T) {
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1", "b2", "c3"}, nil
		},
		instanceCount: func(_, _ string) (int, error) {
			return 1, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(1))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 3, record.CommitCount)
	assert.Equal(t, 0, record.RetestCount)
	assert.Equal(t, "alice", record.Author)
	assert.Equal(t, models.PlatformGitHub, record.Platform)
}

func TestAnalyzeRequestSumsExtraInstances(t *testing.T) {
	counts := map[string]int{"a1": 3, "b2": 1}
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1", "b2"}, nil
		},
		instanceCount: func(_, sha string) (int, error) {
			return counts[sha], nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(2))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 2, record.CommitCount)
	assert.Equal(t, 2, record.RetestCount)
}

func TestAnalyzeRequestForcePushShaIsANewCommit(t *testing.T) {
	// A force-push replaced "old1" with "new1"; the platform only lists
	// the new sha, which has a single run. No retest may be inferred.
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"new1"}, nil
		},
		instanceCount: func(_, sha string) (int, error) {
			return 1, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(3))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 0, record.RetestCount)
}

func TestAnalyzeRequestNotFoundCommitContributesZero(t *testing.T) {
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"gone", "b2"}, nil
		},
		instanceCount: func(_, sha string) (int, error) {
			if sha == "gone" {
				return 0, &models.NotFoundError{Resource: "commit gone"}
			}
			return 4, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(4))
	require.NoError(t, err)
	require.NotNil(t, record)

	// The missing commit contributes zero; the rest still counts.
	assert.Equal(t, 2, record.CommitCount)
	assert.Equal(t, 3, record.RetestCount)
}

func TestAnalyzeRequestRetriesTransientFailures(t *testing.T) {
	attempts := 0
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1"}, nil
		},
		instanceCount: func(_, _ string) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, &models.TransientFetchError{StatusCode: 503, Err: errors.New("upstream hiccup")}
			}
			return 2, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(5))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, record.RetestCount)
}

func TestAnalyzeRequestExhaustedRetriesContributeZero(t *testing.T) {
	attempts := 0
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1", "b2"}, nil
		},
		instanceCount: func(_, sha string) (int, error) {
			if sha == "a1" {
				attempts++
				return 0, &models.TransientFetchError{StatusCode: 429, Err: errors.New("rate limited")}
			}
			return 3, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(6))
	require.NoError(t, err)
	require.NotNil(t, record)

	// Bounded attempts, then the commit degrades to zero.
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, record.RetestCount)
}

func TestAnalyzeRequestNotFoundIsNotRetried(t *testing.T) {
	attempts := 0
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1"}, nil
		},
		instanceCount: func(_, _ string) (int, error) {
			attempts++
			return 0, &models.NotFoundError{Resource: "commit a1"}
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(7))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, record.RetestCount)
}

func TestAnalyzeRequestAuthErrorAborts(t *testing.T) {
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return []string{"a1"}, nil
		},
		instanceCount: func(_, _ string) (int, error) {
			return 0, &models.AuthError{StatusCode: 401}
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(8))
	require.Error(t, err)
	assert.Nil(t, record)

	var authErr *models.AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestAnalyzeRequestWithoutCommitsIsSkipped(t *testing.T) {
	source := &fakeSource{
		listCommits: func(string, int) ([]string, error) {
			return nil, nil
		},
	}

	record, err := newTestAnalyzer(source).AnalyzeRequest(context.Background(), "acme/widgets", mergedRequest(9))
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestListMergedRequestsRetriesTransientFailures(t *testing.T) {
	attempts := 0
	source := &fakeSource{
		listRequests: func(string, time.Time) ([]*platform.MergedRequest, error) {
			attempts++
			if attempts == 1 {
				return nil, &models.TransientFetchError{Err: errors.New("connection reset")}
			}
			return []*platform.MergedRequest{mergedRequest(1)}, nil
		},
	}

	requests, err := newTestAnalyzer(source).ListMergedRequests(context.Background(), "acme/widgets", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 2, attempts)
}
