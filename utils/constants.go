package utils

import (
	"time"
)

// Marketplace request constants
const (
	// MarketplacePageSize is the page size used for paginated marketplace listings
	MarketplacePageSize = 100

	// MarketplaceMaxSearchPageSize is the largest page size the catalog search accepts
	MarketplaceMaxSearchPageSize = 50

	// TokenSafetyMargin is subtracted from the access token lifetime before it is considered expired
	TokenSafetyMargin = 60 * time.Second

	// DefaultTokenLifetime is used when the token endpoint reports no lifetime
	DefaultTokenLifetime = time.Hour
)

// Enrichment constants
const (
	// EnrichmentProgressInterval is how many processed listings pass between progress writes
	EnrichmentProgressInterval = 10

	// SizeConflictTolerance is the largest regional size difference that is not a conflict
	SizeConflictTolerance = 0.5

	// SizeConflictHighThreshold is the difference above which a mismatch is high severity
	SizeConflictHighThreshold = 1.0

	// AuthoritativeSizeSource is recorded as validation_source on reconciled sizes
	AuthoritativeSizeSource = "stockx"
)

// MarketplaceProductURL builds the public product page URL from its url key
func MarketplaceProductURL(urlKey string) string {
	return "https://stockx.com/" + urlKey
}
