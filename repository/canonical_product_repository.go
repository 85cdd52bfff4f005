package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CanonicalProductRepositoryImpl implements CanonicalProductRepository
type CanonicalProductRepositoryImpl struct {
	*BaseRepository[models.CanonicalProduct, models.CanonicalProductFilter]
}

// NewCanonicalProductRepository creates a new canonical product repository
func NewCanonicalProductRepository(db *gorm.DB) CanonicalProductRepository {
	return &CanonicalProductRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CanonicalProduct, models.CanonicalProductFilter](db),
	}
}

// ByProductCode retrieves a product by its EAN/GTIN
func (r *CanonicalProductRepositoryImpl) ByProductCode(ctx context.Context, code string) (*models.CanonicalProduct, error) {
	db := r.getDB(ctx)
	var product models.CanonicalProduct
	if err := db.Where("product_code = ?", code).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find canonical product by code %s: %w", code, err)
	}
	return &product, nil
}

// GetOrCreate returns the product with the same code, inserting product when none exists
func (r *CanonicalProductRepositoryImpl) GetOrCreate(ctx context.Context, product *models.CanonicalProduct) (*models.CanonicalProduct, error) {
	existing, err := r.ByProductCode(ctx, product.ProductCode)
	if err != nil || existing != nil {
		return existing, err
	}

	if product.UUID == uuid.Nil {
		product.UUID = uuid.New()
	}
	created, err := r.insertIfAbsent(ctx, product, clause.OnConflict{
		Columns: []clause.Column{{Name: "product_code"}},
	})
	if err != nil {
		return nil, err
	}
	if created {
		return product, nil
	}

	// lost a concurrent insert; the winner's row is now visible
	existing, err = r.ByProductCode(ctx, product.ProductCode)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("canonical product %s vanished after conflicting insert", product.ProductCode)
	}
	return existing, nil
}

// ByFilter retrieves products matching the filter
func (r *CanonicalProductRepositoryImpl) ByFilter(ctx context.Context, filter models.CanonicalProductFilter, limit, offset int) ([]*models.CanonicalProduct, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db, filter).Order("id ASC"), limit, offset)

	var products []*models.CanonicalProduct
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find canonical products by filter: %w", err)
	}
	return products, nil
}

// Count returns the number of products matching the filter
func (r *CanonicalProductRepositoryImpl) Count(ctx context.Context, filter models.CanonicalProductFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.CanonicalProduct{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count canonical products: %w", err)
	}
	return count, nil
}

func (r *CanonicalProductRepositoryImpl) applyFilter(db *gorm.DB, filter models.CanonicalProductFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.ProductCode != nil {
		db = db.Where("product_code = ?", *filter.ProductCode)
	}
	return db
}
