package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/platform"
	"github.com/flakewatch/flakewatch/internal/services"
	"github.com/flakewatch/flakewatch/internal/workers"
	"github.com/flakewatch/flakewatch/pkg/config"
	"github.com/flakewatch/flakewatch/pkg/logger"
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Scan the configured GitHub repositories and publish retest metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), models.PlatformGitHub)
	},
}

var gitlabCmd = &cobra.Command{
	Use:   "gitlab",
	Short: "Scan the configured GitLab projects and publish retest metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), models.PlatformGitLab)
	},
}

// runScan is one full platform run: scan, snapshot, merge history,
// publish. The two state writes and the metrics push consume the same
// scan result independently; a publish failure never rolls back or
// blocks the persisted state.
func runScan(ctx context.Context, p models.Platform) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	runID := uuid.New().String()[:8]
	log := logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"platform": p,
	})

	source, repoIDs, err := buildSource(cfg, p)
	if err != nil {
		return err
	}
	if len(repoIDs) == 0 {
		return fmt.Errorf("no %s repositories configured", p)
	}

	analyzer := services.NewAnalyzerService(source)
	manager := workers.NewScanManager(analyzer, services.NewAggregateService(), cfg.Concurrency)

	log.Infof("scanning %d repositories, lookback %d days", len(repoIDs), cfg.LookbackDays)
	result, err := manager.Run(ctx, p, repoIDs, cfg.LookbackDays)
	if err != nil {
		return fmt.Errorf("%s scan aborted: %w", p, err)
	}
	log.Infof("scan complete: %d requests, %d retests (%.1f%% of requests retested)",
		result.Overall.TotalRequests, result.Overall.TotalRetests, result.Overall.RetestRatePercent)

	history := services.NewHistoryService(cfg.StateDir, p, cfg.RetentionDays)

	snapshot := &models.ScanSnapshot{
		ScannedAt:  result.WindowEnd,
		WindowDays: cfg.LookbackDays,
		Entries:    result.Records,
	}
	if err := history.WriteSnapshot(snapshot); err != nil {
		return err
	}

	dataset, err := history.Merge(result.Records)
	if err != nil {
		return err
	}
	log.Infof("historical dataset now holds %d entries (cutoff %s)",
		len(dataset.Entries), dataset.Cutoff.Format("2006-01-02"))

	return publishResult(ctx, cfg, log, result)
}

// buildSource wires the platform client from the configuration.
func buildSource(cfg *config.Config, p models.Platform) (platform.Source, []string, error) {
	switch p {
	case models.PlatformGitHub:
		if cfg.GitHub.Token == "" {
			logger.Warn("no GITHUB_TOKEN set, using unauthenticated requests (60/hour rate limit)")
		}
		return platform.NewGitHubSource(cfg.GitHub.Token, cfg.HTTPTimeout()), cfg.GitHub.Repositories, nil
	case models.PlatformGitLab:
		if cfg.GitLab.BaseURL == "" {
			return nil, nil, fmt.Errorf("gitlab.base_url is not configured")
		}
		source, err := platform.NewGitLabSource(cfg.GitLab.BaseURL, cfg.GitLab.Token, cfg.HTTPTimeout())
		if err != nil {
			return nil, nil, err
		}
		return source, cfg.GitLab.Projects, nil
	default:
		return nil, nil, fmt.Errorf("unknown platform %q", p)
	}
}

// publishResult pushes per-repository and overall gauges. Auth failures
// are fatal; anything else is reported and the run still succeeds.
func publishResult(ctx context.Context, cfg *config.Config, log *logrus.Entry, result *workers.ScanResult) error {
	if cfg.Push.URL == "" {
		log.Infof("no push endpoint configured, skipping metrics publish")
		return nil
	}

	publisher := services.NewPublisherService(cfg.Push.URL, cfg.Push.Job, cfg.Push.Username, cfg.Push.Password, cfg.HTTPTimeout())

	failed := 0
	for _, agg := range result.Aggregates {
		if err := publisher.Publish(ctx, agg, result.RecordsFor(agg.RepositoryID)); err != nil {
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				return fmt.Errorf("metrics backend rejected credentials: %w", err)
			}
			logger.WithField("repository", agg.RepositoryID).WithError(err).Error("metrics push failed")
			failed++
		}
	}

	if err := publisher.Publish(ctx, result.Overall, nil); err != nil {
		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("metrics backend rejected credentials: %w", err)
		}
		logger.WithError(err).Error("overall metrics push failed")
		failed++
	}

	if failed > 0 {
		log.Warnf("%d of %d metric pushes failed", failed, len(result.Aggregates)+1)
	} else {
		log.Infof("published metrics for %d repositories", len(result.Aggregates))
	}
	return nil
}
