package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/sneaker-price-ledger/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetailListingRepositoryImpl implements RetailListingRepository
type RetailListingRepositoryImpl struct {
	*BaseRepository[models.RetailListing, models.RetailListingFilter]
}

// NewRetailListingRepository creates a new retail listing repository
func NewRetailListingRepository(db *gorm.DB) RetailListingRepository {
	return &RetailListingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RetailListing, models.RetailListingFilter](db),
	}
}

// ByFilter retrieves listings; eligible listings come back in the requested order
func (r *RetailListingRepositoryImpl) ByFilter(ctx context.Context, filter models.RetailListingFilter, limit, offset int) ([]*models.RetailListing, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RetailListing{}), filter)

	columns := make([]clause.OrderByColumn, 0, len(filter.OrderBy)+1)
	for _, o := range filter.OrderBy {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: o.Column.Name()}, Desc: o.Desc})
	}
	columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	query = paginate(orderBy(query, columns), limit, offset)

	var listings []*models.RetailListing
	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to find retail listings by filter: %w", err)
	}
	return listings, nil
}

// Count returns the number of listings matching the filter
func (r *RetailListingRepositoryImpl) Count(ctx context.Context, filter models.RetailListingFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.RetailListing{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count retail listings: %w", err)
	}
	return count, nil
}

// CountByStatus groups listings by enrichment status; listings never enriched count as pending
func (r *RetailListingRepositoryImpl) CountByStatus(ctx context.Context) (map[models.EnrichmentStatus]int64, error) {
	db := r.getDB(ctx)

	var rows []struct {
		Status string
		Total  int64
	}
	err := db.Model(&models.RetailListing{}).
		Select("COALESCE(enrichment_status, 'pending') AS status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count retail listings by status: %w", err)
	}

	counts := make(map[models.EnrichmentStatus]int64, len(rows))
	for _, row := range rows {
		counts[models.EnrichmentStatus(row.Status)] += row.Total
	}
	return counts, nil
}

// MarkEnrichment records the outcome of matching a listing
func (r *RetailListingRepositoryImpl) MarkEnrichment(ctx context.Context, id uint, status models.EnrichmentStatus, at time.Time, match *models.ListingMatch) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"enrichment_status": status,
		"last_enriched_at":  at,
		"updated_at":        at,
	}
	if match != nil {
		updates["marketplace_product_id"] = match.MarketplaceProductID
		updates["marketplace_url_key"] = match.MarketplaceURLKey
		updates["marketplace_style_id"] = match.MarketplaceStyleID
	}

	res := db.Model(&models.RetailListing{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		err = fmt.Errorf("failed to mark retail listing %d as %s: %w", id, status, res.Error)
	} else if res.RowsAffected == 0 {
		err = fmt.Errorf("retail listing %d not found", id)
	}
	return finish(db, shouldCommit, err)
}

// applyFilter applies filter conditions to the GORM query
func (r *RetailListingRepositoryImpl) applyFilter(db *gorm.DB, filter models.RetailListingFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.SourceType != nil {
		db = db.Where("source_type = ?", *filter.SourceType)
	}
	if filter.ProductCode != nil {
		db = db.Where("product_code = ?", *filter.ProductCode)
	}
	if filter.EnrichmentStatus != nil {
		db = db.Where("enrichment_status = ?", *filter.EnrichmentStatus)
	}
	if filter.InStock != nil {
		db = db.Where("in_stock = ?", *filter.InStock)
	}
	if filter.EligibleForEnrichment {
		db = db.Where("product_code IS NOT NULL AND product_code <> ''").
			Where("in_stock = ?", true)
		if filter.IncludeErrored {
			db = db.Where("(enrichment_status IS NULL OR enrichment_status IN ? OR last_enriched_at IS NULL)",
				[]models.EnrichmentStatus{models.EnrichmentStatusPending, models.EnrichmentStatusError})
		} else {
			db = db.Where("(enrichment_status IS NULL OR enrichment_status = ? OR last_enriched_at IS NULL)",
				models.EnrichmentStatusPending)
		}
	}
	return db
}
