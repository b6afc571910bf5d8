package models

import (
	"fmt"
	"time"
)

// Platform identifies the source-control platform a record came from.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// RequestKind returns the short name the platform uses for a merged
// request ("pr" or "mr"), used in metric names.
func (p Platform) RequestKind() string {
	if p == PlatformGitLab {
		return "mr"
	}
	return "pr"
}

// Valid reports whether p is one of the two supported platforms.
func (p Platform) Valid() bool {
	return p == PlatformGitHub || p == PlatformGitLab
}

// CommitRun is the per-commit re-run observation: how many distinct CI
// execution instances were seen for one sha. Computed per scan, never
// persisted on its own.
type CommitRun struct {
	SHA           string
	InstanceCount int
}

// Retests returns the retest contribution of this commit: every
// instance beyond the first, floored at zero. A commit with zero
// observed instances (pipeline still queued, or filtered out) is a
// valid zero, not an error.
func (c CommitRun) Retests() int {
	if c.InstanceCount <= 1 {
		return 0
	}
	return c.InstanceCount - 1
}

// RequestKey is the stable identity of a merged request across rescans.
type RequestKey struct {
	Platform      Platform
	RepositoryID  string
	RequestNumber int
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s/%s!%d", k.Platform, k.RepositoryID, k.RequestNumber)
}

// RequestRecord is the per-request metrics record for one merged
// pull/merge request.
type RequestRecord struct {
	Platform      Platform  `json:"platform"`
	RepositoryID  string    `json:"repository_id"`
	RequestNumber int       `json:"request_number"`
	Author        string    `json:"author"`
	MergedAt      time.Time `json:"merged_at"`
	CommitCount   int       `json:"commit_count"`
	RetestCount   int       `json:"retest_count"`
	URL           string    `json:"url"`
}

// Key returns the identity key of the record. Merge state is immutable
// once merged, so the key is stable across rescans.
func (r *RequestRecord) Key() RequestKey {
	return RequestKey{
		Platform:      r.Platform,
		RepositoryID:  r.RepositoryID,
		RequestNumber: r.RequestNumber,
	}
}
