package models

import "time"

// PriceHistory is an append-only record of a ledger row's price or stock change
type PriceHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PriceSourceID uint      `gorm:"not null;index:idx_price_history_price_source_id" json:"price_source_id"`
	PriceCents    int64     `gorm:"not null" json:"price_cents"`
	InStock       bool      `gorm:"not null" json:"in_stock"`
	StockQuantity *int      `json:"stock_quantity,omitempty"`
	RecordedAt    time.Time `gorm:"not null;index:idx_price_history_recorded_at" json:"recorded_at"`
}

func (PriceHistory) TableName() string { return "price_history" }

// PriceHistoryFilter represents filter criteria for price history queries
type PriceHistoryFilter struct {
	PriceSourceID  *uint
	RecordedAfter  *time.Time
	RecordedBefore *time.Time
}
