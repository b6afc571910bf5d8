package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/pkg/logger"
)

// HistoryService owns the persisted per-platform dataset: it merges a
// freshly scanned batch into the historical document, deduplicating by
// identity key and trimming entries beyond the retention horizon.
//
// The read-merge-write cycle is a single critical section guarded by a
// lock file, and the write is an atomic temp-and-rename so an abandoned
// run can never leave a partially written dataset behind.
type HistoryService struct {
	stateDir      string
	platform      models.Platform
	retentionDays int

	now func() time.Time
}

func NewHistoryService(stateDir string, p models.Platform, retentionDays int) *HistoryService {
	return &HistoryService{
		stateDir:      stateDir,
		platform:      p,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// HistoricalPath returns the dataset document path for the platform.
func (s *HistoryService) HistoricalPath() string {
	return filepath.Join(s.stateDir, fmt.Sprintf("%s_flakiness_historical.json", s.platform))
}

// CurrentPath returns the latest-window snapshot path for the platform.
func (s *HistoryService) CurrentPath() string {
	return filepath.Join(s.stateDir, fmt.Sprintf("%s_flakiness_current.json", s.platform))
}

// Merge folds a scanned batch into the historical dataset and writes it
// back. A record whose identity key already exists replaces the old
// entry unconditionally: the newest scan wins. Entries whose merged_at
// is exactly at the cutoff survive; anything older is trimmed.
func (s *HistoryService) Merge(batch []*models.RequestRecord) (*models.HistoricalDataset, error) {
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(s.HistoricalPath() + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire dataset lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.WithError(err).Error("failed to release dataset lock")
		}
	}()

	now := s.now().UTC()
	dataset, err := s.load(now)
	if err != nil {
		return nil, err
	}

	byKey := make(map[models.RequestKey]*models.RequestRecord, len(dataset.Entries)+len(batch))
	for _, entry := range dataset.Entries {
		byKey[entry.Key()] = entry
	}
	for _, record := range batch {
		byKey[record.Key()] = record
	}

	cutoff := now.AddDate(0, 0, -s.retentionDays)
	entries := make([]*models.RequestRecord, 0, len(byKey))
	for _, record := range byKey {
		if record.MergedAt.Before(cutoff) {
			continue
		}
		entries = append(entries, record)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].MergedAt.Equal(entries[j].MergedAt) {
			return entries[i].MergedAt.Before(entries[j].MergedAt)
		}
		if entries[i].RepositoryID != entries[j].RepositoryID {
			return entries[i].RepositoryID < entries[j].RepositoryID
		}
		return entries[i].RequestNumber < entries[j].RequestNumber
	})

	dataset.Entries = entries
	dataset.UpdatedAt = now
	dataset.Cutoff = cutoff
	dataset.RetentionDays = s.retentionDays

	if err := writeJSONAtomic(s.HistoricalPath(), dataset); err != nil {
		return nil, err
	}

	return dataset, nil
}

// WriteSnapshot writes the latest-window document. No merge, no trim.
func (s *HistoryService) WriteSnapshot(snapshot *models.ScanSnapshot) error {
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return writeJSONAtomic(s.CurrentPath(), snapshot)
}

// load reads the existing dataset. A missing file starts an empty
// dataset; an unreadable one fails loudly, because silently resetting
// would erase history.
func (s *HistoryService) load(now time.Time) (*models.HistoricalDataset, error) {
	path := s.HistoricalPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.WithField("path", path).Info("no historical dataset found, starting empty")
		return models.NewHistoricalDataset(s.retentionDays, now), nil
	}
	if err != nil {
		return nil, &models.CorruptStateError{Path: path, Err: err}
	}

	var dataset models.HistoricalDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, &models.CorruptStateError{Path: path, Err: err}
	}
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = now
	}
	return &dataset, nil
}

// writeJSONAtomic writes v as indented JSON using a temp file in the
// same directory followed by a rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
