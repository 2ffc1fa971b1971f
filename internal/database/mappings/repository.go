// Package mappings provides database operations for the match cache.
//
// This package implements the MappingStore interface used by the book matcher.
//
// # Interface Implementation
//
//	var _ matcher.MappingStore = (*Repository)(nil)
//
// # Usage
//
//	repo := mappings.NewRepository(db)
//	mapping, err := repo.GetMapping("li_8f2c")
package mappings

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/shelfsync/internal/entities"
)

// Repository handles all match cache database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new mappings repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetMapping returns the cached mapping for a source book, or nil if none exists.
// Implements MappingStore.GetMapping.
func (r *Repository) GetMapping(sourceBookID string) (*entities.BookMapping, error) {
	var mapping entities.BookMapping
	err := r.db.Where("source_book_id = ?", sourceBookID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// SaveMapping creates the mapping or overwrites the existing row for the same source book.
// Implements MappingStore.SaveMapping.
func (r *Repository) SaveMapping(mapping *entities.BookMapping) error {
	if mapping.LastMatched.IsZero() {
		mapping.LastMatched = time.Now()
	}

	var existing entities.BookMapping
	result := r.db.Where("source_book_id = ?", mapping.SourceBookID).First(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.Create(mapping).Error
	} else if result.Error != nil {
		return result.Error
	}

	mapping.ID = existing.ID
	return r.db.Save(mapping).Error
}

// ListMappings returns cached mappings, most recently matched first.
func (r *Repository) ListMappings(limit, offset int) ([]entities.BookMapping, int64, error) {
	var mappings []entities.BookMapping
	var total int64

	if err := r.db.Model(&entities.BookMapping{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := r.db.Order("last_matched DESC").Limit(limit).Offset(offset).Find(&mappings).Error
	return mappings, total, err
}
