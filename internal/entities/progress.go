package entities

import "time"

// ProgressRecord is a normalized listening position reported by the progress source.
// Records are immutable for the duration of a sync cycle.
type ProgressRecord struct {
	SourceBookID           string
	Title                  string
	Author                 string
	ISBN                   string
	ASIN                   string
	DurationSeconds        float64
	CurrentPositionSeconds float64
	ProgressPercent        float64
	IsFinished             bool
	LastUpdate             *time.Time
}

// ProgressPercent returns position/duration as a percentage clamped to [0,100].
// An unknown (zero or negative) duration always yields 0.
func ProgressPercent(positionSeconds, durationSeconds float64) float64 {
	if durationSeconds <= 0 || positionSeconds <= 0 {
		return 0
	}
	pct := positionSeconds / durationSeconds * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// NewProgressRecord builds a record and derives ProgressPercent from the position and duration.
func NewProgressRecord(sourceBookID, title string, positionSeconds, durationSeconds float64, finished bool) ProgressRecord {
	return ProgressRecord{
		SourceBookID:           sourceBookID,
		Title:                  title,
		DurationSeconds:        durationSeconds,
		CurrentPositionSeconds: positionSeconds,
		ProgressPercent:        ProgressPercent(positionSeconds, durationSeconds),
		IsFinished:             finished,
	}
}

// ListenedMinutes returns the listened time in minutes.
func (r ProgressRecord) ListenedMinutes() float64 {
	return r.CurrentPositionSeconds / 60
}

// MeetsEngagement reports whether the listener passed the minimum listening threshold.
func (r ProgressRecord) MeetsEngagement(minListenSeconds float64) bool {
	return r.CurrentPositionSeconds >= minListenSeconds
}
