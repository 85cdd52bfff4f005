package dto

import "time"

// StartEnrichmentJobRequest starts an enrichment run; omitted fields fall back to the configured defaults
type StartEnrichmentJobRequest struct {
	RateLimitPerMinute *int `json:"rate_limit_per_minute,omitempty" validate:"omitempty,gt=0,lte=600"`
	BatchLimit         *int `json:"batch_limit,omitempty" validate:"omitempty,gte=0"`
	IncludeErrored     bool `json:"include_errored"`
}

// EnrichmentJobResponse is the state of one enrichment job
type EnrichmentJobResponse struct {
	JobUUID             string     `json:"job_uuid"`
	Status              string     `json:"status"`
	TotalProducts       int        `json:"total_products"`
	TotalProcessed      int        `json:"total_processed"`
	Matched             int        `json:"matched"`
	NotFound            int        `json:"not_found"`
	Errors              int        `json:"errors"`
	MatchRatePercentage float64    `json:"match_rate_percentage"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	FatalError          *string    `json:"fatal_error,omitempty"`
	ErrorLog            []string   `json:"error_log"`
}

// EnrichmentStatsResponse summarises listing enrichment state
type EnrichmentStatsResponse struct {
	TotalListings       int64            `json:"total_listings"`
	EligibleListings    int64            `json:"eligible_listings"`
	ByStatus            map[string]int64 `json:"by_status"`
	MatchRatePercentage float64          `json:"match_rate_percentage"`
}
