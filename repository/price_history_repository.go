package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"gorm.io/gorm"
)

// PriceHistoryRepositoryImpl implements PriceHistoryRepository
type PriceHistoryRepositoryImpl struct {
	*BaseRepository[models.PriceHistory, models.PriceHistoryFilter]
}

// NewPriceHistoryRepository creates a new price history repository
func NewPriceHistoryRepository(db *gorm.DB) PriceHistoryRepository {
	return &PriceHistoryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PriceHistory, models.PriceHistoryFilter](db),
	}
}

// ByFilter lists history entries oldest first
func (r *PriceHistoryRepositoryImpl) ByFilter(ctx context.Context, filter models.PriceHistoryFilter, limit, offset int) ([]*models.PriceHistory, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db, filter).Order("recorded_at ASC, id ASC"), limit, offset)

	var entries []*models.PriceHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to find price history: %w", err)
	}
	return entries, nil
}

// Count returns the number of history entries matching the filter
func (r *PriceHistoryRepositoryImpl) Count(ctx context.Context, filter models.PriceHistoryFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.PriceHistory{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count price history: %w", err)
	}
	return count, nil
}

func (r *PriceHistoryRepositoryImpl) applyFilter(db *gorm.DB, filter models.PriceHistoryFilter) *gorm.DB {
	if filter.PriceSourceID != nil {
		db = db.Where("price_source_id = ?", *filter.PriceSourceID)
	}
	if filter.RecordedAfter != nil {
		db = db.Where("recorded_at >= ?", *filter.RecordedAfter)
	}
	if filter.RecordedBefore != nil {
		db = db.Where("recorded_at <= ?", *filter.RecordedBefore)
	}
	return db
}
