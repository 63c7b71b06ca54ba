package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/onexay/contentvs/internal/models"
)

// ValidationRepository is the data access contract for moderation cycles.
type ValidationRepository interface {
	Create(validation *models.Validation) error
	GetByID(id uint) (*models.Validation, error)
	GetActiveByContent(contentID uint) (*models.Validation, error)
	ListByContent(contentID uint) ([]models.Validation, error)
	ListActive() ([]models.Validation, error)
	CancelActive(contentID uint, at time.Time) (int64, error)
	Update(validation *models.Validation) error
	DeleteByContent(contentID uint) error
	WithTx(tx *gorm.DB) *GormValidationRepository
}

// GormValidationRepository is the gorm implementation.
type GormValidationRepository struct {
	db *gorm.DB
}

// NewValidationRepository creates a validation repository.
func NewValidationRepository(db *gorm.DB) *GormValidationRepository {
	return &GormValidationRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormValidationRepository) WithTx(tx *gorm.DB) *GormValidationRepository {
	if tx == nil {
		return r
	}
	return &GormValidationRepository{db: tx}
}

var activeStatuses = []string{models.ValidationPending, models.ValidationPendingReserved}

// Create inserts a validation.
func (r *GormValidationRepository) Create(validation *models.Validation) error {
	return r.db.Create(validation).Error
}

// GetByID returns nil when the validation does not exist.
func (r *GormValidationRepository) GetByID(id uint) (*models.Validation, error) {
	var validation models.Validation
	if err := r.db.First(&validation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &validation, nil
}

// GetActiveByContent returns the open cycle of a content, or nil.
func (r *GormValidationRepository) GetActiveByContent(contentID uint) (*models.Validation, error) {
	var validation models.Validation
	err := r.db.Where("content_id = ? AND status IN ?", contentID, activeStatuses).
		Order("id desc").
		First(&validation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &validation, nil
}

// ListByContent returns every cycle of a content, oldest first.
func (r *GormValidationRepository) ListByContent(contentID uint) ([]models.Validation, error) {
	var validations []models.Validation
	if err := r.db.Where("content_id = ?", contentID).Order("id asc").Find(&validations).Error; err != nil {
		return nil, err
	}
	return validations, nil
}

// ListActive returns the moderation queue, oldest request first.
func (r *GormValidationRepository) ListActive() ([]models.Validation, error) {
	var validations []models.Validation
	if err := r.db.Where("status IN ?", activeStatuses).Order("date_propose asc").Find(&validations).Error; err != nil {
		return nil, err
	}
	return validations, nil
}

// CancelActive closes every open cycle of a content.
func (r *GormValidationRepository) CancelActive(contentID uint, at time.Time) (int64, error) {
	res := r.db.Model(&models.Validation{}).
		Where("content_id = ? AND status IN ?", contentID, activeStatuses).
		Updates(map[string]interface{}{
			"status":          models.ValidationCancel,
			"date_validation": at,
		})
	return res.RowsAffected, res.Error
}

// Update saves every column.
func (r *GormValidationRepository) Update(validation *models.Validation) error {
	return r.db.Save(validation).Error
}

// DeleteByContent removes every cycle of a content.
func (r *GormValidationRepository) DeleteByContent(contentID uint) error {
	return r.db.Where("content_id = ?", contentID).Delete(&models.Validation{}).Error
}
