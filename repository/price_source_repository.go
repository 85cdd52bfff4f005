package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceSourceRepositoryImpl implements PriceSourceRepository
type PriceSourceRepositoryImpl struct {
	*BaseRepository[models.PriceSource, models.PriceSourceFilter]
}

// NewPriceSourceRepository creates a new price ledger repository
func NewPriceSourceRepository(db *gorm.DB) PriceSourceRepository {
	return &PriceSourceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PriceSource, models.PriceSourceFilter](db),
	}
}

// ByKey finds the ledger row for key; with lock the row stays locked until the transaction ends
func (r *PriceSourceRepositoryImpl) ByKey(ctx context.Context, key models.PriceSourceKey, lock bool) (*models.PriceSource, error) {
	db := forUpdate(r.getDB(ctx), lock).
		Where("product_id = ? AND source_type = ? AND source_product_id = ?", key.ProductID, key.SourceType, key.SourceProductID)
	if key.SizeID != nil {
		db = db.Where("size_id = ?", *key.SizeID)
	} else {
		db = db.Where("size_id IS NULL")
	}

	var source models.PriceSource
	if err := db.First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find price source: %w", err)
	}
	return &source, nil
}

// InsertIfAbsent inserts source unless a row with the same key exists; it reports whether a row was written
func (r *PriceSourceRepositoryImpl) InsertIfAbsent(ctx context.Context, source *models.PriceSource) (bool, error) {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "source_type"}, {Name: "source_product_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "size_id IS NULL"},
		}},
	}
	if source.SizeID != nil {
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}, {Name: "source_type"}, {Name: "source_product_id"}, {Name: "size_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "size_id IS NOT NULL"},
			}},
		}
	}
	return r.insertIfAbsent(ctx, source, conflict)
}

// ByFilter retrieves ledger rows matching the filter in the requested column order
func (r *PriceSourceRepositoryImpl) ByFilter(ctx context.Context, filter models.PriceSourceFilter, limit, offset int) ([]*models.PriceSource, error) {
	db := r.getDB(ctx)
	query := paginate(orderBy(r.applyFilter(db, filter), priceSourceOrder(filter.OrderBy)), limit, offset)

	var sources []*models.PriceSource
	if err := query.Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to find price sources by filter: %w", err)
	}
	return sources, nil
}

// ListWithSizes is ByFilter with the size record of each row loaded
func (r *PriceSourceRepositoryImpl) ListWithSizes(ctx context.Context, filter models.PriceSourceFilter) ([]*models.PriceSource, error) {
	db := r.getDB(ctx)
	query := orderBy(r.applyFilter(db.Preload("Size"), filter), priceSourceOrder(filter.OrderBy))

	var sources []*models.PriceSource
	if err := query.Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list price sources with sizes: %w", err)
	}
	return sources, nil
}

// Count returns the number of ledger rows matching the filter
func (r *PriceSourceRepositoryImpl) Count(ctx context.Context, filter models.PriceSourceFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.PriceSource{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count price sources: %w", err)
	}
	return count, nil
}

func priceSourceOrder(orders []models.PriceSourceOrder) []clause.OrderByColumn {
	columns := make([]clause.OrderByColumn, 0, len(orders)+1)
	for _, o := range orders {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: o.Column.Name()}, Desc: o.Desc})
	}
	return append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}

func (r *PriceSourceRepositoryImpl) applyFilter(db *gorm.DB, filter models.PriceSourceFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ProductID != nil {
		db = db.Where("product_id = ?", *filter.ProductID)
	}
	if filter.SourceType != nil {
		db = db.Where("source_type = ?", *filter.SourceType)
	}
	if len(filter.PriceTypes) > 0 {
		db = db.Where("price_type IN ?", filter.PriceTypes)
	}
	if filter.InStock != nil {
		db = db.Where("in_stock = ?", *filter.InStock)
	}
	if filter.WithSize {
		db = db.Where("size_id IS NOT NULL")
	}
	return db
}
