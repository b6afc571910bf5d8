package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gitlab "github.com/xanzy/go-gitlab"

	"github.com/flakewatch/flakewatch/internal/models"
)

// mergeRequestPipelineSource is the only pipeline trigger source that
// counts as a CI execution instance for a commit. Scheduled and branch
// pipelines re-run the same sha for unrelated reasons and would produce
// false positives.
const mergeRequestPipelineSource = "merge_request_event"

// GitLabSource counts re-runs on GitLab. The instance count for a
// commit is the number of pipelines triggered by a merge-request event
// for its sha.
type GitLabSource struct {
	client *gitlab.Client
}

// NewGitLabSource creates a GitLab source against the given instance
// URL (e.g. https://gitlab.example.com).
func NewGitLabSource(baseURL, token string, timeout time.Duration) (*GitLabSource, error) {
	// Retry policy lives in the analyzer as an explicit bounded-attempt
	// backoff; the client's built-in retries would stack on top of it.
	client, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(baseURL),
		gitlab.WithHTTPClient(&http.Client{Timeout: timeout}),
		gitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &GitLabSource{client: client}, nil
}

func (s *GitLabSource) Platform() models.Platform {
	return models.PlatformGitLab
}

// ListMergedRequests walks merged MRs ordered by update time descending
// and stops once merge timestamps fall behind the window.
func (s *GitLabSource) ListMergedRequests(ctx context.Context, projectID string, since time.Time) ([]*MergedRequest, error) {
	var requests []*MergedRequest
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State:       gitlab.Ptr("merged"),
		OrderBy:     gitlab.Ptr("updated_at"),
		Sort:        gitlab.Ptr("desc"),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}

	for page := 1; page <= listPageLimit; page++ {
		opts.Page = page
		mrs, resp, err := s.client.MergeRequests.ListProjectMergeRequests(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyGitLabError(err, resp, fmt.Sprintf("merge requests of %s", projectID))
		}
		if len(mrs) == 0 {
			break
		}

		for _, mr := range mrs {
			if mr.MergedAt == nil {
				continue
			}
			if mr.MergedAt.Before(since) {
				return requests, nil
			}
			author := ""
			if mr.Author != nil {
				author = mr.Author.Username
			}
			requests = append(requests, &MergedRequest{
				Number:   mr.IID,
				Author:   author,
				MergedAt: *mr.MergedAt,
				URL:      mr.WebURL,
			})
		}

		if resp.NextPage == 0 {
			break
		}
	}

	return requests, nil
}

// ListCommits returns the commit shas of one merge request, in order.
func (s *GitLabSource) ListCommits(ctx context.Context, projectID string, iid int) ([]string, error) {
	var shas []string
	opts := &gitlab.GetMergeRequestCommitsOptions{PerPage: 100}

	for {
		commits, resp, err := s.client.MergeRequests.GetMergeRequestCommits(projectID, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyGitLabError(err, resp, fmt.Sprintf("commits of %s!%d", projectID, iid))
		}
		for _, c := range commits {
			shas = append(shas, c.ID)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return shas, nil
}

// InstanceCount counts the merge-request-event pipelines for the sha.
// The source filter is applied server-side and rechecked here, since
// older GitLab versions ignore the query parameter.
func (s *GitLabSource) InstanceCount(ctx context.Context, projectID string, sha string) (int, error) {
	count := 0
	opts := &gitlab.ListProjectPipelinesOptions{
		SHA:         gitlab.Ptr(sha),
		Source:      gitlab.Ptr(mergeRequestPipelineSource),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}

	for {
		pipelines, resp, err := s.client.Pipelines.ListProjectPipelines(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return 0, classifyGitLabError(err, resp, fmt.Sprintf("pipelines of %s@%s", projectID, sha))
		}
		for _, p := range pipelines {
			if p.Source == mergeRequestPipelineSource {
				count++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return count, nil
}

// classifyGitLabError maps go-gitlab errors onto the shared taxonomy.
func classifyGitLabError(err error, resp *gitlab.Response, resource string) error {
	if resp != nil && resp.Response != nil {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &models.NotFoundError{Resource: resource}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &models.AuthError{StatusCode: resp.StatusCode}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &models.TransientFetchError{StatusCode: resp.StatusCode, Err: err}
		}
	}

	return &models.TransientFetchError{Err: err}
}
