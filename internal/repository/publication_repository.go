package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/models"
)

// PublicationRepository is the data access contract for publication events.
type PublicationRepository interface {
	Create(published *models.PublishedContent) error
	Update(published *models.PublishedContent) error
	GetCurrent(contentID uint) (*models.PublishedContent, error)
	GetLatestBySlug(contentID uint, slug string) (*models.PublishedContent, error)
	GetFirst(contentID uint) (*models.PublishedContent, error)
	ListByContent(contentID uint) ([]models.PublishedContent, error)
	MarkRedirect(contentID uint, exceptID uint) error
	Delete(id uint) error
	DeleteByContent(contentID uint) error
	WithTx(tx *gorm.DB) *GormPublicationRepository
}

// GormPublicationRepository is the gorm implementation.
type GormPublicationRepository struct {
	db *gorm.DB
}

// NewPublicationRepository creates a publication repository.
func NewPublicationRepository(db *gorm.DB) *GormPublicationRepository {
	return &GormPublicationRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormPublicationRepository) WithTx(tx *gorm.DB) *GormPublicationRepository {
	if tx == nil {
		return r
	}
	return &GormPublicationRepository{db: tx}
}

// Create inserts a publication event.
func (r *GormPublicationRepository) Create(published *models.PublishedContent) error {
	return r.db.Create(published).Error
}

// Update saves every column.
func (r *GormPublicationRepository) Update(published *models.PublishedContent) error {
	return r.db.Save(published).Error
}

func (r *GormPublicationRepository) first(query *gorm.DB) (*models.PublishedContent, error) {
	var published models.PublishedContent
	if err := query.First(&published).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &published, nil
}

// GetCurrent returns the live publication of a content, or nil.
func (r *GormPublicationRepository) GetCurrent(contentID uint) (*models.PublishedContent, error) {
	return r.first(r.db.Where("content_id = ? AND must_redirect = ?", contentID, false).Order("id desc"))
}

// GetLatestBySlug returns the newest publication made under slug, or nil.
func (r *GormPublicationRepository) GetLatestBySlug(contentID uint, slug string) (*models.PublishedContent, error) {
	return r.first(r.db.Where("content_id = ? AND content_public_slug = ?", contentID, slug).Order("id desc"))
}

// GetFirst returns the oldest publication of a content, or nil.
func (r *GormPublicationRepository) GetFirst(contentID uint) (*models.PublishedContent, error) {
	return r.first(r.db.Where("content_id = ?", contentID).Order("id asc"))
}

// ListByContent returns every publication of a content, oldest first.
func (r *GormPublicationRepository) ListByContent(contentID uint) ([]models.PublishedContent, error) {
	var rows []models.PublishedContent
	if err := r.db.Where("content_id = ?", contentID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkRedirect flags every other publication of a content as superseded.
func (r *GormPublicationRepository) MarkRedirect(contentID uint, exceptID uint) error {
	return r.db.Model(&models.PublishedContent{}).
		Where("content_id = ? AND id <> ? AND must_redirect = ?", contentID, exceptID, false).
		Update("must_redirect", true).Error
}

// Delete removes one publication event.
func (r *GormPublicationRepository) Delete(id uint) error {
	return r.db.Delete(&models.PublishedContent{}, id).Error
}

// DeleteByContent removes every publication event of a content.
func (r *GormPublicationRepository) DeleteByContent(contentID uint) error {
	return r.db.Where("content_id = ?", contentID).Delete(&models.PublishedContent{}).Error
}
