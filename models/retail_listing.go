package models

import (
	"time"
)

// SourceType identifies the system a listing or price was collected from
type SourceType string

const (
	SourceTypeStockX   SourceType = "stockx"
	SourceTypeAwin     SourceType = "awin"
	SourceTypeEbay     SourceType = "ebay"
	SourceTypeGOAT     SourceType = "goat"
	SourceTypeKlekt    SourceType = "klekt"
	SourceTypeRestocks SourceType = "restocks"
)

// EnrichmentStatus tracks where a retail listing is in the marketplace matching process
type EnrichmentStatus string

const (
	EnrichmentStatusPending  EnrichmentStatus = "pending"
	EnrichmentStatusMatched  EnrichmentStatus = "matched"
	EnrichmentStatusNotFound EnrichmentStatus = "not_found"
	EnrichmentStatusError    EnrichmentStatus = "error"
)

// RetailListing is a product offer imported from a retailer feed
type RetailListing struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	SourceType           SourceType        `gorm:"type:varchar(20);not null;uniqueIndex:uk_retail_listings_source,priority:1" json:"source_type"`
	SourceProductID      string            `gorm:"size:100;not null;uniqueIndex:uk_retail_listings_source,priority:2" json:"source_product_id"`
	ProductName          *string           `gorm:"size:500" json:"product_name,omitempty"`
	BrandName            *string           `gorm:"size:200" json:"brand_name,omitempty"`
	MerchantName         *string           `gorm:"size:200" json:"merchant_name,omitempty"`
	ProductCode          *string           `gorm:"size:32;index:idx_retail_listings_product_code" json:"product_code,omitempty"`
	Size                 *string           `gorm:"size:50" json:"size,omitempty"`
	Colour               *string           `gorm:"size:100" json:"colour,omitempty"`
	PriceCents           int64             `gorm:"not null" json:"price_cents"`
	Currency             string            `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	InStock              bool              `gorm:"not null;default:true" json:"in_stock"`
	StockQuantity        *int              `json:"stock_quantity,omitempty"`
	AffiliateLink        *string           `gorm:"type:text" json:"affiliate_link,omitempty"`
	EnrichmentStatus     *EnrichmentStatus `gorm:"type:varchar(20);index:idx_retail_listings_enrichment_status" json:"enrichment_status,omitempty"`
	LastEnrichedAt       *time.Time        `json:"last_enriched_at,omitempty"`
	MarketplaceProductID *string           `gorm:"size:100" json:"marketplace_product_id,omitempty"`
	MarketplaceURLKey    *string           `gorm:"size:255" json:"marketplace_url_key,omitempty"`
	MarketplaceStyleID   *string           `gorm:"size:100" json:"marketplace_style_id,omitempty"`
	CreatedAt            time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (RetailListing) TableName() string { return "retail_listings" }

// RetailListingColumn is the closed set of columns listings can be ordered by
type RetailListingColumn int

const (
	RetailListingColumnID RetailListingColumn = iota
	RetailListingColumnPriceCents
	RetailListingColumnLastEnrichedAt
	RetailListingColumnCreatedAt
)

// Name returns the database column name
func (c RetailListingColumn) Name() string {
	switch c {
	case RetailListingColumnPriceCents:
		return "price_cents"
	case RetailListingColumnLastEnrichedAt:
		return "last_enriched_at"
	case RetailListingColumnCreatedAt:
		return "created_at"
	default:
		return "id"
	}
}

// RetailListingOrder orders listing queries
type RetailListingOrder struct {
	Column RetailListingColumn
	Desc   bool
}

// RetailListingFilter represents filter criteria for retail listing queries
type RetailListingFilter struct {
	ID                    *uint
	SourceType            *SourceType
	ProductCode           *string
	EnrichmentStatus      *EnrichmentStatus
	InStock               *bool
	EligibleForEnrichment bool
	IncludeErrored        bool
	OrderBy               []RetailListingOrder
}

// ListingMatch carries the marketplace identifiers recorded on a matched listing
type ListingMatch struct {
	MarketplaceProductID string
	MarketplaceURLKey    *string
	MarketplaceStyleID   *string
}

// EnrichmentStats summarises listing enrichment state
type EnrichmentStats struct {
	TotalListings       int64                      `json:"total_listings"`
	EligibleListings    int64                      `json:"eligible_listings"`
	ByStatus            map[EnrichmentStatus]int64 `json:"by_status"`
	MatchRatePercentage float64                    `json:"match_rate_percentage"`
}
