package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/flakewatch/flakewatch/internal/models"
)

// defaultPushAttempts bounds retries on 429/5xx push responses.
const defaultPushAttempts = 3

// PublisherService serializes one RepositoryAggregate and its
// constituent RequestRecords into gauge families and pushes them to a
// Pushgateway-compatible endpoint (optionally with basic auth, e.g.
// Grafana Cloud credentials).
//
// Each repository is its own push group, so repositories never clobber
// each other's series and one failed repository never blocks the rest.
type PublisherService struct {
	url      string
	job      string
	username string
	password string
	client   *http.Client
}

func NewPublisherService(url, job, username, password string, timeout time.Duration) *PublisherService {
	return &PublisherService{
		url:      url,
		job:      job,
		username: username,
		password: password,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newRetryTransport(nil, defaultPushAttempts, 500*time.Millisecond),
		},
	}
}

// Publish pushes the aggregate and per-request gauges for one
// repository. 429/5xx responses are retried with backoff and then
// surface as *models.PublishError; 401/403 fail fast as
// *models.AuthError.
func (s *PublisherService) Publish(ctx context.Context, agg *models.RepositoryAggregate, records []*models.RequestRecord) error {
	registry := prometheus.NewRegistry()
	p := string(agg.Platform)
	kind := agg.Platform.RequestKind()

	requestRetests := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fmt.Sprintf("%s_%s_retests", p, kind),
		Help: fmt.Sprintf("Number of retests for an individual %s", kind),
	}, []string{"repository", fmt.Sprintf("%s_number", kind), "author", "url"})

	analyzedTotal := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fmt.Sprintf("%s_flakiness_%ss_analyzed_total", p, kind),
		Help: "Total number of merged requests analyzed",
	}, []string{"repository"})

	retestsTotal := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fmt.Sprintf("%s_flakiness_retests_total", p),
		Help: "Total number of retests detected",
	}, []string{"repository"})

	retestRate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fmt.Sprintf("%s_flakiness_retest_rate_percent", p),
		Help: "Percentage of merged requests requiring retests",
	}, []string{"repository"})

	avgRetests := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: fmt.Sprintf("%s_flakiness_avg_retests_per_%s", p, kind),
		Help: "Average number of retests per merged request",
	}, []string{"repository"})

	registry.MustRegister(requestRetests, analyzedTotal, retestsTotal, retestRate, avgRetests)

	for _, record := range records {
		requestRetests.WithLabelValues(
			record.RepositoryID,
			strconv.Itoa(record.RequestNumber),
			record.Author,
			record.URL,
		).Set(float64(record.RetestCount))
	}

	analyzedTotal.WithLabelValues(agg.RepositoryID).Set(float64(agg.TotalRequests))
	retestsTotal.WithLabelValues(agg.RepositoryID).Set(float64(agg.TotalRetests))
	retestRate.WithLabelValues(agg.RepositoryID).Set(agg.RetestRatePercent)
	avgRetests.WithLabelValues(agg.RepositoryID).Set(agg.AvgRetestsPerRequest)

	pusher := push.New(s.url, s.job).
		Gatherer(registry).
		Client(s.client).
		Grouping("platform", p).
		Grouping("repository", agg.RepositoryID)
	if s.username != "" {
		pusher = pusher.BasicAuth(s.username, s.password)
	}

	return classifyPushError(pusher.PushContext(ctx))
}

// classifyPushError keeps taxonomy errors from the retry transport
// as-is and wraps anything else as a publish failure.
func classifyPushError(err error) error {
	if err == nil {
		return nil
	}
	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	var pubErr *models.PublishError
	if errors.As(err, &pubErr) {
		return pubErr
	}
	return &models.PublishError{Err: err}
}
