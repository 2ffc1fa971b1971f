package entities

import "time"

type Classification string

const (
	ClassificationSynced  Classification = "synced"
	ClassificationSkipped Classification = "skipped"
	ClassificationFailed  Classification = "failed"
)

// SyncHistory is the outcome of syncing a single book during a single run.
// Rows are append-only.
type SyncHistory struct {
	ID              uint                    `gorm:"primaryKey" json:"id"`
	RunID           string                  `gorm:"size:50;index" json:"run_id"`
	SourceBookID    string                  `gorm:"size:100;index;not null" json:"source_book_id"`
	Title           string                  `gorm:"size:500" json:"title"`
	Author          string                  `gorm:"size:500" json:"author,omitempty"`
	ISBN            string                  `gorm:"size:20" json:"isbn,omitempty"`
	ASIN            string                  `gorm:"size:20" json:"asin,omitempty"`
	ProgressPercent float64                 `json:"progress_percent"`
	IsFinished      bool                    `json:"is_finished"`
	MatchMethod     MatchMethod             `gorm:"size:20" json:"match_method"`
	MatchConfidence float64                 `json:"match_confidence"`
	Classification  Classification          `gorm:"size:20;index" json:"classification"`
	Success         bool                    `json:"success"`
	Destinations    []SyncDestinationResult `gorm:"foreignKey:HistoryID" json:"destinations"`
	SyncedAt        time.Time               `gorm:"index" json:"synced_at"`
}

func (SyncHistory) TableName() string {
	return "sync_history"
}

// Destination returns the result recorded for a destination, if present.
func (h SyncHistory) Destination(name string) (SyncDestinationResult, bool) {
	for _, d := range h.Destinations {
		if d.Destination == name {
			return d, true
		}
	}
	return SyncDestinationResult{}, false
}

// SyncDestinationResult is the per-destination part of a SyncHistory row.
type SyncDestinationResult struct {
	ID                uint   `gorm:"primaryKey" json:"-"`
	HistoryID         uint   `gorm:"index" json:"-"`
	Destination       string `gorm:"size:50;index" json:"destination"`
	DestinationBookID string `gorm:"size:100" json:"destination_book_id,omitempty"`
	Attempted         bool   `json:"attempted"`
	Succeeded         bool   `json:"succeeded"`
	Error             string `gorm:"type:text" json:"error,omitempty"`
}

func (SyncDestinationResult) TableName() string {
	return "sync_destination_result"
}
