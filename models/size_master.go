package models

import (
	"time"
)

// SizeRegion is a regional sizing system
type SizeRegion string

const (
	SizeRegionUS SizeRegion = "us"
	SizeRegionEU SizeRegion = "eu"
	SizeRegionUK SizeRegion = "uk"
	SizeRegionCM SizeRegion = "cm"
	SizeRegionKR SizeRegion = "kr"
)

// ReconciledSizeRegions are the regions compared against the authoritative source; US is the key
var ReconciledSizeRegions = []SizeRegion{SizeRegionEU, SizeRegionUK, SizeRegionCM, SizeRegionKR}

const (
	GenderMen    = "men"
	GenderWomen  = "women"
	GenderUnisex = "unisex"
	GenderChild  = "child"
)

// SizeMaster is the canonical size record, one row per (us_size, gender, category)
type SizeMaster struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Gender           string     `gorm:"size:20;not null" json:"gender"`
	Category         *string    `gorm:"size:50" json:"category,omitempty"`
	USSize           float64    `gorm:"type:numeric(5,2);not null" json:"us_size"`
	EUSize           *float64   `gorm:"type:numeric(5,2)" json:"eu_size,omitempty"`
	UKSize           *float64   `gorm:"type:numeric(5,2)" json:"uk_size,omitempty"`
	CMSize           *float64   `gorm:"type:numeric(5,2)" json:"cm_size,omitempty"`
	KRSize           *float64   `gorm:"type:numeric(6,2)" json:"kr_size,omitempty"`
	ValidationSource *string    `gorm:"size:50" json:"validation_source,omitempty"`
	LastValidatedAt  *time.Time `json:"last_validated_at,omitempty"`
	CreatedAt        time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (SizeMaster) TableName() string { return "size_master" }

// RegionValue returns the stored size for a region
func (s *SizeMaster) RegionValue(region SizeRegion) *float64 {
	switch region {
	case SizeRegionUS:
		v := s.USSize
		return &v
	case SizeRegionEU:
		return s.EUSize
	case SizeRegionUK:
		return s.UKSize
	case SizeRegionCM:
		return s.CMSize
	case SizeRegionKR:
		return s.KRSize
	}
	return nil
}

// SetRegionValue overwrites the stored size for a region
func (s *SizeMaster) SetRegionValue(region SizeRegion, v float64) {
	switch region {
	case SizeRegionUS:
		s.USSize = v
	case SizeRegionEU:
		s.EUSize = &v
	case SizeRegionUK:
		s.UKSize = &v
	case SizeRegionCM:
		s.CMSize = &v
	case SizeRegionKR:
		s.KRSize = &v
	}
}

// Snapshot captures the reconciled fields for the audit trail
func (s *SizeMaster) Snapshot() SizeSnapshot {
	return SizeSnapshot{
		Gender:           s.Gender,
		Category:         s.Category,
		USSize:           s.USSize,
		EUSize:           s.EUSize,
		UKSize:           s.UKSize,
		CMSize:           s.CMSize,
		KRSize:           s.KRSize,
		ValidationSource: s.ValidationSource,
		LastValidatedAt:  s.LastValidatedAt,
	}
}

// SizeSnapshot is a point-in-time copy of a size record
type SizeSnapshot struct {
	Gender           string     `json:"gender"`
	Category         *string    `json:"category"`
	USSize           float64    `json:"us_size"`
	EUSize           *float64   `json:"eu_size"`
	UKSize           *float64   `json:"uk_size"`
	CMSize           *float64   `json:"cm_size"`
	KRSize           *float64   `json:"kr_size"`
	ValidationSource *string    `json:"validation_source"`
	LastValidatedAt  *time.Time `json:"last_validated_at"`
}

// SizeMasterKey is the natural key of a size record
type SizeMasterKey struct {
	USSize   float64
	Gender   string
	Category *string
}

// SizeMasterFilter represents filter criteria for size record queries
type SizeMasterFilter struct {
	ID       *uint
	Gender   *string
	Category *string
	USSize   *float64
	EUSize   *float64
	UKSize   *float64
}
