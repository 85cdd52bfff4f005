package models

import (
	"time"

	"gorm.io/datatypes"
)

// SizeValidationStatus is the outcome of one reconciliation
type SizeValidationStatus string

const (
	SizeValidationStatusCreated SizeValidationStatus = "created"
	SizeValidationStatusUpdated SizeValidationStatus = "updated"
	SizeValidationStatusValid   SizeValidationStatus = "valid"
)

// SizeAction is what the reconciliation did to the stored record
type SizeAction string

const (
	SizeActionCreated  SizeAction = "created"
	SizeActionUpdated  SizeAction = "updated"
	SizeActionNoChange SizeAction = "no_change"
)

// SizeConflictType classifies a disagreement with the authoritative source
type SizeConflictType string

const (
	SizeConflictMissingInDB SizeConflictType = "missing_in_db"
	SizeConflictMismatch    SizeConflictType = "mismatch"
)

// SizeConflictSeverity grades a conflict
type SizeConflictSeverity string

const (
	SizeConflictSeverityLow    SizeConflictSeverity = "low"
	SizeConflictSeverityMedium SizeConflictSeverity = "medium"
	SizeConflictSeverityHigh   SizeConflictSeverity = "high"
)

// SizeConflict is one field-level disagreement
type SizeConflict struct {
	Field    SizeRegion           `json:"field"`
	Type     SizeConflictType     `json:"type"`
	Severity SizeConflictSeverity `json:"severity"`
	Before   *float64             `json:"before"`
	After    float64              `json:"after"`
}

// SizeValidationLog is an append-only audit row written for every reconciliation
type SizeValidationLog struct {
	ID                   uint                              `gorm:"primaryKey" json:"id"`
	SizeMasterID         uint                              `gorm:"not null;index:idx_size_validation_log_size_master_id" json:"size_master_id"`
	ValidationSource     string                            `gorm:"size:50;not null" json:"validation_source"`
	ValidationStatus     SizeValidationStatus              `gorm:"type:varchar(20);not null" json:"validation_status"`
	MarketplaceProductID *string                           `gorm:"size:100" json:"marketplace_product_id,omitempty"`
	MarketplaceVariantID *string                           `gorm:"size:100" json:"marketplace_variant_id,omitempty"`
	ConflictsFound       datatypes.JSONSlice[SizeConflict] `gorm:"type:jsonb;not null" json:"conflicts_found"`
	ActionTaken          SizeAction                        `gorm:"type:varchar(20);not null" json:"action_taken"`
	BeforeData           datatypes.JSONType[*SizeSnapshot] `gorm:"type:jsonb;not null" json:"before_data"`
	AfterData            datatypes.JSONType[SizeSnapshot]  `gorm:"type:jsonb;not null" json:"after_data"`
	ValidatedAt          time.Time                         `gorm:"not null" json:"validated_at"`
}

func (SizeValidationLog) TableName() string { return "size_validation_log" }

// SizeValidationLogFilter represents filter criteria for size audit queries
type SizeValidationLogFilter struct {
	SizeMasterID     *uint
	ValidationStatus *SizeValidationStatus
}
