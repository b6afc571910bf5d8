package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/flakewatch/flakewatch/internal/models"
)

// GitHubSource counts re-runs on GitHub. There is no CI-orchestrator
// API to ask directly, so the instance count for a commit is the number
// of distinct check suites attached to its sha. A force-push produces a
// new sha and therefore a new commit, never a retest of the old one.
type GitHubSource struct {
	client *github.Client
}

// NewGitHubSource creates a GitHub source. An empty token falls back to
// unauthenticated requests (60/hour rate limit).
func NewGitHubSource(token string, timeout time.Duration) *GitHubSource {
	httpClient := &http.Client{Timeout: timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = timeout
	}
	return &GitHubSource{client: github.NewClient(httpClient)}
}

func (s *GitHubSource) Platform() models.Platform {
	return models.PlatformGitHub
}

// ListMergedRequests walks closed PRs ordered by update time descending
// and stops once merge timestamps fall behind the window.
func (s *GitHubSource) ListMergedRequests(ctx context.Context, repoID string, since time.Time) ([]*MergedRequest, error) {
	owner, name, err := splitRepoID(repoID)
	if err != nil {
		return nil, err
	}

	var requests []*MergedRequest
	opts := &github.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for page := 1; page <= listPageLimit; page++ {
		opts.Page = page
		prs, resp, err := s.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyGitHubError(err, resp, fmt.Sprintf("pull requests of %s", repoID))
		}
		if len(prs) == 0 {
			break
		}

		for _, pr := range prs {
			if pr.MergedAt == nil {
				continue
			}
			mergedAt := pr.GetMergedAt().Time
			if mergedAt.Before(since) {
				// Sorted by update time, so everything further back is
				// outside the window too.
				return requests, nil
			}
			requests = append(requests, &MergedRequest{
				Number:   pr.GetNumber(),
				Author:   pr.GetUser().GetLogin(),
				MergedAt: mergedAt,
				URL:      pr.GetHTMLURL(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
	}

	return requests, nil
}

// ListCommits returns the commit shas of one pull request, in order.
func (s *GitHubSource) ListCommits(ctx context.Context, repoID string, number int) ([]string, error) {
	owner, name, err := splitRepoID(repoID)
	if err != nil {
		return nil, err
	}

	var shas []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		commits, resp, err := s.client.PullRequests.ListCommits(ctx, owner, name, number, opts)
		if err != nil {
			return nil, classifyGitHubError(err, resp, fmt.Sprintf("commits of %s#%d", repoID, number))
		}
		for _, c := range commits {
			shas = append(shas, c.GetSHA())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return shas, nil
}

// InstanceCount counts the distinct check suites attached to the sha.
func (s *GitHubSource) InstanceCount(ctx context.Context, repoID string, sha string) (int, error) {
	owner, name, err := splitRepoID(repoID)
	if err != nil {
		return 0, err
	}

	opts := &github.ListCheckSuiteOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	}
	results, resp, err := s.client.Checks.ListCheckSuitesForRef(ctx, owner, name, sha, opts)
	if err != nil {
		return 0, classifyGitHubError(err, resp, fmt.Sprintf("check suites of %s@%s", repoID, sha))
	}

	return results.GetTotal(), nil
}

// classifyGitHubError maps go-github errors onto the shared taxonomy.
func classifyGitHubError(err error, resp *github.Response, resource string) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &models.TransientFetchError{StatusCode: http.StatusForbidden, Err: err}
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
			// 422 is what the checks API answers for an unknown sha.
			return &models.NotFoundError{Resource: resource}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &models.AuthError{StatusCode: resp.StatusCode}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &models.TransientFetchError{StatusCode: resp.StatusCode, Err: err}
		}
	}

	// No HTTP status means a network-level failure, worth retrying.
	return &models.TransientFetchError{Err: err}
}

// splitRepoID splits an "owner/name" repository identifier.
func splitRepoID(repoID string) (string, string, error) {
	parts := strings.SplitN(repoID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository identifier %q, expected owner/name", repoID)
	}
	return parts[0], parts[1], nil
}
