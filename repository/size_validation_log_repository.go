package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"gorm.io/gorm"
)

// SizeValidationLogRepositoryImpl implements SizeValidationLogRepository
type SizeValidationLogRepositoryImpl struct {
	*BaseRepository[models.SizeValidationLog, models.SizeValidationLogFilter]
}

// NewSizeValidationLogRepository creates a new size audit repository
func NewSizeValidationLogRepository(db *gorm.DB) SizeValidationLogRepository {
	return &SizeValidationLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SizeValidationLog, models.SizeValidationLogFilter](db),
	}
}

// ByFilter lists audit entries, newest first
func (r *SizeValidationLogRepositoryImpl) ByFilter(ctx context.Context, filter models.SizeValidationLogFilter, limit, offset int) ([]*models.SizeValidationLog, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db, filter).Order("validated_at DESC, id DESC"), limit, offset)

	var entries []*models.SizeValidationLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to find size validation log entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of audit entries matching the filter
func (r *SizeValidationLogRepositoryImpl) Count(ctx context.Context, filter models.SizeValidationLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.SizeValidationLog{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count size validation log entries: %w", err)
	}
	return count, nil
}

func (r *SizeValidationLogRepositoryImpl) applyFilter(db *gorm.DB, filter models.SizeValidationLogFilter) *gorm.DB {
	if filter.SizeMasterID != nil {
		db = db.Where("size_master_id = ?", *filter.SizeMasterID)
	}
	if filter.ValidationStatus != nil {
		db = db.Where("validation_status = ?", *filter.ValidationStatus)
	}
	return db
}
