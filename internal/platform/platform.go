package platform

import (
	"context"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

// listPageLimit caps pagination on merged-request listings. Listings
// are ordered by update time descending and the walk stops once past
// the scan window, so the cap only guards against runaway pagination.
const listPageLimit = 10

// MergedRequest is the platform-neutral view of one merged pull/merge
// request, as returned by a listing.
type MergedRequest struct {
	Number   int
	Author   string
	MergedAt time.Time
	URL      string
}

// Source is the read-only capability a platform must provide: walk the
// merged requests of a repository, walk the commits of one request, and
// count the CI execution instances observed for one commit sha.
//
// Errors are classified into the shared taxonomy: *models.AuthError,
// *models.NotFoundError and *models.TransientFetchError.
type Source interface {
	// Platform identifies the implementation.
	Platform() models.Platform

	// ListMergedRequests returns the requests of repoID merged at or
	// after since, newest first.
	ListMergedRequests(ctx context.Context, repoID string, since time.Time) ([]*MergedRequest, error)

	// ListCommits returns the ordered commit shas of one merged request.
	ListCommits(ctx context.Context, repoID string, number int) ([]string, error)

	// InstanceCount returns the number of distinct CI execution
	// instances observed for the sha. Zero instances is a valid count,
	// not an error.
	InstanceCount(ctx context.Context, repoID string, sha string) (int, error)
}
