package services

import (
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flakewatch/flakewatch/internal/models"
)

// retryTransport retries 429 and 5xx responses (and network failures)
// with exponential backoff, bounded by maxAttempts. 401/403 stop
// immediately as *models.AuthError; exhausted retries surface as
// *models.PublishError. Both unwrap through the *url.Error the
// http.Client returns.
type retryTransport struct {
	base            http.RoundTripper
	maxAttempts     uint64
	initialInterval time.Duration
}

func newRetryTransport(base http.RoundTripper, maxAttempts uint64, initialInterval time.Duration) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:            base,
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initialInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, t.maxAttempts-1), req.Context())

	var resp *http.Response
	operation := func() error {
		attempt := req
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			attempt = req.Clone(req.Context())
			attempt.Body = body
		}

		r, err := t.base.RoundTrip(attempt)
		if err != nil {
			return &models.PublishError{Err: err}
		}

		switch {
		case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
			drainAndClose(r.Body)
			return backoff.Permanent(&models.AuthError{StatusCode: r.StatusCode})
		case r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500:
			drainAndClose(r.Body)
			return &models.PublishError{StatusCode: r.StatusCode}
		}

		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
