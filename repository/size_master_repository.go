package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SizeMasterRepositoryImpl implements SizeMasterRepository
type SizeMasterRepositoryImpl struct {
	*BaseRepository[models.SizeMaster, models.SizeMasterFilter]
}

// NewSizeMasterRepository creates a new size record repository
func NewSizeMasterRepository(db *gorm.DB) SizeMasterRepository {
	return &SizeMasterRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SizeMaster, models.SizeMasterFilter](db),
	}
}

// ByNaturalKey finds the size record for (us_size, gender, category); a nil category matches only a null one
func (r *SizeMasterRepositoryImpl) ByNaturalKey(ctx context.Context, key models.SizeMasterKey, lock bool) (*models.SizeMaster, error) {
	db := forUpdate(r.getDB(ctx), lock).
		Where("us_size = ? AND gender = ?", key.USSize, key.Gender)
	if key.Category != nil {
		db = db.Where("category = ?", *key.Category)
	} else {
		db = db.Where("category IS NULL")
	}

	var size models.SizeMaster
	if err := db.First(&size).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find size record: %w", err)
	}
	return &size, nil
}

// InsertIfAbsent inserts size unless its natural key is taken; it reports whether a row was written
func (r *SizeMasterRepositoryImpl) InsertIfAbsent(ctx context.Context, size *models.SizeMaster) (bool, error) {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "us_size"}, {Name: "gender"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "category IS NULL"},
		}},
	}
	if size.Category != nil {
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "us_size"}, {Name: "gender"}, {Name: "category"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "category IS NOT NULL"},
			}},
		}
	}
	return r.insertIfAbsent(ctx, size, conflict)
}

// ByFilter retrieves size records matching the filter
func (r *SizeMasterRepositoryImpl) ByFilter(ctx context.Context, filter models.SizeMasterFilter, limit, offset int) ([]*models.SizeMaster, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db, filter).Order("gender ASC, us_size ASC, id ASC"), limit, offset)

	var sizes []*models.SizeMaster
	if err := query.Find(&sizes).Error; err != nil {
		return nil, fmt.Errorf("failed to find size records by filter: %w", err)
	}
	return sizes, nil
}

// Count returns the number of size records matching the filter
func (r *SizeMasterRepositoryImpl) Count(ctx context.Context, filter models.SizeMasterFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.SizeMaster{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count size records: %w", err)
	}
	return count, nil
}

func (r *SizeMasterRepositoryImpl) applyFilter(db *gorm.DB, filter models.SizeMasterFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Gender != nil {
		db = db.Where("gender = ?", *filter.Gender)
	}
	if filter.Category != nil {
		db = db.Where("category = ?", *filter.Category)
	}
	if filter.USSize != nil {
		db = db.Where("us_size = ?", *filter.USSize)
	}
	if filter.EUSize != nil {
		db = db.Where("eu_size = ?", *filter.EUSize)
	}
	if filter.UKSize != nil {
		db = db.Where("uk_size = ?", *filter.UKSize)
	}
	return db
}
