package entities

import "time"

// SyncLog is a persisted log line of a sync run. Details holds the line's key/value
// pairs encoded as a JSON object.
type SyncLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"size:50;index" json:"run_id,omitempty"`
	Level     string    `gorm:"size:20;index;not null" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_log"
}
