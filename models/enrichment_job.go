package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// EnrichmentJobStatus is the lifecycle state of an enrichment run
type EnrichmentJobStatus string

const (
	EnrichmentJobStatusRunning   EnrichmentJobStatus = "running"
	EnrichmentJobStatusCompleted EnrichmentJobStatus = "completed"
	EnrichmentJobStatusFailed    EnrichmentJobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change state
func (s EnrichmentJobStatus) IsTerminal() bool {
	return s == EnrichmentJobStatusCompleted || s == EnrichmentJobStatusFailed
}

const EnrichmentJobTypeMarketplace = "marketplace_enrichment"

// EnrichmentJob records one batch enrichment run
type EnrichmentJob struct {
	ID                uint                                         `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID                                    `gorm:"type:uuid;not null;uniqueIndex:uk_enrichment_jobs_uuid" json:"uuid"`
	JobType           string                                       `gorm:"size:50;not null" json:"job_type"`
	Status            EnrichmentJobStatus                          `gorm:"type:varchar(20);not null;index:idx_enrichment_jobs_status" json:"status"`
	TotalProducts     int                                          `gorm:"not null;default:0" json:"total_products"`
	ProcessedProducts int                                          `gorm:"not null;default:0" json:"processed_products"`
	MatchedProducts   int                                          `gorm:"not null;default:0" json:"matched_products"`
	NotFoundProducts  int                                          `gorm:"not null;default:0" json:"not_found_products"`
	FailedProducts    int                                          `gorm:"not null;default:0" json:"failed_products"`
	StartedAt         time.Time                                    `gorm:"not null" json:"started_at"`
	CompletedAt       *time.Time                                   `json:"completed_at,omitempty"`
	ResultsSummary    datatypes.JSONType[EnrichmentResultsSummary] `gorm:"type:jsonb;not null" json:"results_summary"`
	ErrorLog          pq.StringArray                               `gorm:"type:text[];not null" json:"error_log"`
	CreatedAt         time.Time                                    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt         time.Time                                    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (EnrichmentJob) TableName() string { return "enrichment_jobs" }

// EnrichmentResultsSummary is the outcome of a run as stored on the job and returned to callers
type EnrichmentResultsSummary struct {
	JobUUID             uuid.UUID           `json:"job_uuid"`
	Status              EnrichmentJobStatus `json:"status"`
	TotalProcessed      int                 `json:"total_processed"`
	Matched             int                 `json:"matched"`
	NotFound            int                 `json:"not_found"`
	Errors              int                 `json:"errors"`
	MatchRatePercentage float64             `json:"match_rate_percentage"`
	StartedAt           time.Time           `json:"started_at"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
	FatalError          *string             `json:"fatal_error,omitempty"`
}

// EnrichmentJobProgress is the counter snapshot persisted while a run is in flight
type EnrichmentJobProgress struct {
	Processed int
	Matched   int
	NotFound  int
	Failed    int
	ErrorLog  []string
}

// EnrichmentJobFilter represents filter criteria for enrichment job queries
type EnrichmentJobFilter struct {
	ID      *uint
	UUID    *uuid.UUID
	Status  *EnrichmentJobStatus
	JobType *string
}
