package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenRefreshTotal counts marketplace access token refreshes by result
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_token_refresh_total",
			Help: "Total number of marketplace access token refreshes",
		},
		[]string{"result"},
	)

	// MarketplaceRequestsTotal counts marketplace API requests by endpoint group and status
	MarketplaceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_requests_total",
			Help: "Total number of marketplace API requests",
		},
		[]string{"endpoint", "status"},
	)

	// MarketplaceRequestDuration observes marketplace API latency
	MarketplaceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_request_duration_seconds",
			Help:    "Marketplace API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
