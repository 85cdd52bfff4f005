package models

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalProduct is the stable product identity shared by all price sources, keyed by product code
type CanonicalProduct struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UUID                 uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_canonical_products_uuid" json:"uuid"`
	ProductCode          string    `gorm:"size:32;not null;uniqueIndex:uk_canonical_products_code" json:"product_code"`
	Name                 *string   `gorm:"size:500" json:"name,omitempty"`
	BrandName            *string   `gorm:"size:200" json:"brand_name,omitempty"`
	MarketplaceProductID *string   `gorm:"size:100" json:"marketplace_product_id,omitempty"`
	StyleID              *string   `gorm:"size:100" json:"style_id,omitempty"`
	CreatedAt            time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt            time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (CanonicalProduct) TableName() string { return "canonical_products" }

// CanonicalProductFilter represents filter criteria for canonical product queries
type CanonicalProductFilter struct {
	ID          *uint
	UUID        *uuid.UUID
	ProductCode *string
}
