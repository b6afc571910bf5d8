package models

import "time"

// HistoricalDataset is the rolling per-platform dataset: at most one
// entry per identity key, nothing older than the retention horizon,
// entries ordered by merged_at ascending for deterministic diffs.
// Mutated only by the history merge step.
type HistoricalDataset struct {
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	RetentionDays int              `json:"retention_days"`
	Cutoff        time.Time        `json:"cutoff"`
	Entries       []*RequestRecord `json:"entries"`
}

// NewHistoricalDataset returns an empty dataset, used when no state
// file exists yet.
func NewHistoricalDataset(retentionDays int, now time.Time) *HistoricalDataset {
	return &HistoricalDataset{
		CreatedAt:     now,
		UpdatedAt:     now,
		RetentionDays: retentionDays,
		Entries:       []*RequestRecord{},
	}
}

// ScanSnapshot is the latest-window document: only the records of the
// most recent scan, no merge or trim applied.
type ScanSnapshot struct {
	ScannedAt  time.Time        `json:"scanned_at"`
	WindowDays int              `json:"window_days"`
	Entries    []*RequestRecord `json:"entries"`
}
