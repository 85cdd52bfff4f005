package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Listings processed by enrichment partitioned by outcome
	enrichmentListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_listings_total",
			Help: "Total number of retail listings processed by enrichment",
		},
		[]string{"outcome"},
	)

	// Finalized enrichment jobs partitioned by terminal status
	enrichmentJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_jobs_total",
			Help: "Total number of finalized enrichment jobs",
		},
		[]string{"status"},
	)

	enrichmentJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_job_duration_seconds",
			Help:    "Enrichment job wall-clock duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	// Size reconciliations partitioned by validation status
	sizeReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "size_reconciliations_total",
			Help: "Total number of size records reconciled against the marketplace",
		},
		[]string{"status"},
	)

	// Price ledger writes partitioned by price type and whether history was appended
	priceLedgerWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_ledger_writes_total",
			Help: "Total number of price ledger upserts",
		},
		[]string{"price_type", "change"},
	)
)
