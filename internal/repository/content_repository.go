package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/models"
)

// ContentRepository is the data access contract for publishable contents.
type ContentRepository interface {
	Create(content *models.PublishableContent) error
	GetByID(id uint) (*models.PublishableContent, error)
	GetBySlug(slug string) (*models.PublishableContent, error)
	SlugExists(slug string, excludeID uint) (bool, error)
	Update(content *models.PublishableContent) error
	Delete(id uint) error
	WithTx(tx *gorm.DB) *GormContentRepository
}

// GormContentRepository is the gorm implementation.
type GormContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a content repository.
func NewContentRepository(db *gorm.DB) *GormContentRepository {
	return &GormContentRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormContentRepository) WithTx(tx *gorm.DB) *GormContentRepository {
	if tx == nil {
		return r
	}
	return &GormContentRepository{db: tx}
}

// Create inserts a content.
func (r *GormContentRepository) Create(content *models.PublishableContent) error {
	return r.db.Create(content).Error
}

// GetByID returns nil when the content does not exist.
func (r *GormContentRepository) GetByID(id uint) (*models.PublishableContent, error) {
	var content models.PublishableContent
	if err := r.db.First(&content, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &content, nil
}

// GetBySlug returns nil when no content carries the slug.
func (r *GormContentRepository) GetBySlug(slug string) (*models.PublishableContent, error) {
	var content models.PublishableContent
	if err := r.db.Where("slug = ?", slug).First(&content).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &content, nil
}

// SlugExists checks slug usage, ignoring excludeID.
func (r *GormContentRepository) SlugExists(slug string, excludeID uint) (bool, error) {
	var count int64
	query := r.db.Model(&models.PublishableContent{}).Where("slug = ?", slug)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update saves every column, including cleared sha pointers.
func (r *GormContentRepository) Update(content *models.PublishableContent) error {
	return r.db.Save(content).Error
}

// Delete removes the row.
func (r *GormContentRepository) Delete(id uint) error {
	return r.db.Delete(&models.PublishableContent{}, id).Error
}
