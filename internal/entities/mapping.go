package entities

import "time"

// BookMapping caches the last resolved destination identifiers for a source book.
// There is exactly one row per source book; fresh matches overwrite it.
type BookMapping struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	SourceBookID    string            `gorm:"size:100;uniqueIndex;not null" json:"source_book_id"`
	DestinationIDs  map[string]string `gorm:"serializer:json;type:text" json:"destination_ids"`
	Title           string            `gorm:"size:500" json:"title"`
	Author          string            `gorm:"size:500" json:"author,omitempty"`
	ISBN            string            `gorm:"size:20" json:"isbn,omitempty"`
	ASIN            string            `gorm:"size:20" json:"asin,omitempty"`
	MatchConfidence float64           `json:"match_confidence"`
	MatchMethod     MatchMethod       `gorm:"size:20" json:"match_method"`
	LastMatched     time.Time         `json:"last_matched"`
}

func (BookMapping) TableName() string {
	return "book_mapping"
}
