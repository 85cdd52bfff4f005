// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// Transactor runs fn inside a transaction carried by the context passed to it
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// RetailListingRepository defines operations for retail feed listings
type RetailListingRepository interface {
	Repository[models.RetailListing, models.RetailListingFilter]
	SaveBatch(ctx context.Context, listings []*models.RetailListing) error
	CountByStatus(ctx context.Context) (map[models.EnrichmentStatus]int64, error)
	MarkEnrichment(ctx context.Context, id uint, status models.EnrichmentStatus, at time.Time, match *models.ListingMatch) error
}

// CanonicalProductRepository defines operations for canonical products
type CanonicalProductRepository interface {
	Repository[models.CanonicalProduct, models.CanonicalProductFilter]
	ByProductCode(ctx context.Context, code string) (*models.CanonicalProduct, error)
	GetOrCreate(ctx context.Context, product *models.CanonicalProduct) (*models.CanonicalProduct, error)
}

// SizeMasterRepository defines operations for canonical size records
type SizeMasterRepository interface {
	Repository[models.SizeMaster, models.SizeMasterFilter]
	ByNaturalKey(ctx context.Context, key models.SizeMasterKey, lock bool) (*models.SizeMaster, error)
	InsertIfAbsent(ctx context.Context, size *models.SizeMaster) (bool, error)
	Update(ctx context.Context, size *models.SizeMaster) error
}

// SizeValidationLogRepository defines operations for the append-only size audit trail
type SizeValidationLogRepository interface {
	Save(ctx context.Context, entry *models.SizeValidationLog) error
	ByFilter(ctx context.Context, filter models.SizeValidationLogFilter, limit, offset int) ([]*models.SizeValidationLog, error)
	Count(ctx context.Context, filter models.SizeValidationLogFilter) (int64, error)
}

// PriceSourceRepository defines operations for the unified price ledger
type PriceSourceRepository interface {
	Repository[models.PriceSource, models.PriceSourceFilter]
	ByKey(ctx context.Context, key models.PriceSourceKey, lock bool) (*models.PriceSource, error)
	InsertIfAbsent(ctx context.Context, source *models.PriceSource) (bool, error)
	Update(ctx context.Context, source *models.PriceSource) error
	ListWithSizes(ctx context.Context, filter models.PriceSourceFilter) ([]*models.PriceSource, error)
}

// PriceHistoryRepository defines operations for the append-only price history
type PriceHistoryRepository interface {
	Save(ctx context.Context, entry *models.PriceHistory) error
	ByFilter(ctx context.Context, filter models.PriceHistoryFilter, limit, offset int) ([]*models.PriceHistory, error)
	Count(ctx context.Context, filter models.PriceHistoryFilter) (int64, error)
}

// EnrichmentJobRepository defines operations for enrichment job bookkeeping
type EnrichmentJobRepository interface {
	Repository[models.EnrichmentJob, models.EnrichmentJobFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.EnrichmentJob, error)
	UpdateProgress(ctx context.Context, id uint, progress models.EnrichmentJobProgress) error
	Finalize(ctx context.Context, job *models.EnrichmentJob) error
}
