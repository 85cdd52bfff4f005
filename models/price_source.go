package models

import (
	"time"

	"gorm.io/datatypes"
)

// PriceType classifies a ledger price
type PriceType string

const (
	PriceTypeRetail    PriceType = "retail"
	PriceTypeResale    PriceType = "resale"
	PriceTypeAuction   PriceType = "auction"
	PriceTypeWholesale PriceType = "wholesale"
)

// PriceSource is one row of the unified price ledger.
// Unique per (product_id, source_type, source_product_id, size_id), with sized and sizeless rows
// enforced by separate partial indexes.
type PriceSource struct {
	ID              uint                                    `gorm:"primaryKey" json:"id"`
	ProductID       uint                                    `gorm:"not null;index:idx_price_sources_product_id" json:"product_id"`
	Product         *CanonicalProduct                       `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	SizeID          *uint                                   `gorm:"index:idx_price_sources_size_id" json:"size_id,omitempty"`
	Size            *SizeMaster                             `gorm:"foreignKey:SizeID" json:"size,omitempty"`
	SourceType      SourceType                              `gorm:"type:varchar(20);not null" json:"source_type"`
	SourceProductID string                                  `gorm:"size:100;not null" json:"source_product_id"`
	SourceName      *string                                 `gorm:"size:200" json:"source_name,omitempty"`
	PriceType       PriceType                               `gorm:"type:varchar(20);not null;index:idx_price_sources_price_type" json:"price_type"`
	PriceCents      int64                                   `gorm:"not null" json:"price_cents"`
	Currency        string                                  `gorm:"size:3;not null" json:"currency"`
	InStock         bool                                    `gorm:"not null;default:true" json:"in_stock"`
	StockQuantity   *int                                    `json:"stock_quantity,omitempty"`
	SourceURL       *string                                 `gorm:"type:text" json:"source_url,omitempty"`
	AffiliateLink   *string                                 `gorm:"type:text" json:"affiliate_link,omitempty"`
	Metadata        datatypes.JSONType[PriceSourceMetadata] `gorm:"type:jsonb;not null" json:"metadata"`
	LastUpdated     time.Time                               `gorm:"not null" json:"last_updated"`
	CreatedAt       time.Time                               `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt       time.Time                               `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (PriceSource) TableName() string { return "price_sources" }

// Key returns the ledger identity of the row
func (p *PriceSource) Key() PriceSourceKey {
	return PriceSourceKey{
		ProductID:       p.ProductID,
		SourceType:      p.SourceType,
		SourceProductID: p.SourceProductID,
		SizeID:          p.SizeID,
	}
}

// PriceSourceKey identifies a ledger row
type PriceSourceKey struct {
	ProductID       uint
	SourceType      SourceType
	SourceProductID string
	SizeID          *uint
}

// PriceSourceMetadata carries source-specific attributes; exactly one member matches Source
type PriceSourceMetadata struct {
	Source SourceType           `json:"source"`
	StockX *StockXPriceMetadata `json:"stockx,omitempty"`
	Awin   *AwinPriceMetadata   `json:"awin,omitempty"`
}

// StockXPriceMetadata describes a marketplace resale quote
type StockXPriceMetadata struct {
	ProductID       string  `json:"product_id"`
	VariantID       *string `json:"variant_id,omitempty"`
	URLKey          *string `json:"url_key,omitempty"`
	StyleID         *string `json:"style_id,omitempty"`
	ProductCategory *string `json:"product_category,omitempty"`
	HighestBidCents *int64  `json:"highest_bid_cents,omitempty"`
}

// AwinPriceMetadata describes a retail feed offer
type AwinPriceMetadata struct {
	MerchantName *string `json:"merchant_name,omitempty"`
	BrandName    *string `json:"brand_name,omitempty"`
	Colour       *string `json:"colour,omitempty"`
	Size         *string `json:"size,omitempty"`
}

// PriceSourceColumn is the closed set of ledger columns queries may order by
type PriceSourceColumn int

const (
	PriceSourceColumnID PriceSourceColumn = iota
	PriceSourceColumnPriceCents
	PriceSourceColumnLastUpdated
	PriceSourceColumnProductID
)

// Name returns the database column name
func (c PriceSourceColumn) Name() string {
	switch c {
	case PriceSourceColumnPriceCents:
		return "price_cents"
	case PriceSourceColumnLastUpdated:
		return "last_updated"
	case PriceSourceColumnProductID:
		return "product_id"
	default:
		return "id"
	}
}

// PriceSourceOrder orders ledger queries
type PriceSourceOrder struct {
	Column PriceSourceColumn
	Desc   bool
}

// PriceSourceFilter represents filter criteria for ledger queries
type PriceSourceFilter struct {
	ID         *uint
	ProductID  *uint
	SourceType *SourceType
	PriceTypes []PriceType
	InStock    *bool
	WithSize   bool
	OrderBy    []PriceSourceOrder
}
