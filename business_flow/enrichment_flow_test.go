package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/services"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRun() EnrichmentRunRequest {
	return EnrichmentRunRequest{RateLimitPerMinute: 6000}
}

func statusOf(t *testing.T, fx *flowFixture, id uint) models.EnrichmentStatus {
	t.Helper()
	l := fx.listings.get(id)
	require.NotNil(t, l)
	require.NotNil(t, l.EnrichmentStatus)
	return *l.EnrichmentStatus
}

func TestEnrichmentFlowRun(t *testing.T) {
	ctx := context.Background()

	t.Run("MatchedListingFeedsOpportunities", func(t *testing.T) {
		fx := newFlowFixture()
		listing := fx.listing("4066749632018", 8000, "")
		fx.catalog.addProduct("4066749632018", "p-1", "95.00")

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, models.EnrichmentJobStatusCompleted, summary.Status)
		assert.Equal(t, 1, summary.TotalProducts)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, 100.0, summary.MatchRatePercentage)
		assert.NotNil(t, summary.CompletedAt)
		assert.Nil(t, summary.FatalError)

		stored := fx.listings.get(listing.ID)
		assert.Equal(t, models.EnrichmentStatusMatched, *stored.EnrichmentStatus)
		require.NotNil(t, stored.MarketplaceProductID)
		assert.Equal(t, "p-1", *stored.MarketplaceProductID)
		assert.NotNil(t, stored.LastEnrichedAt)

		require.Len(t, fx.products.products, 1)
		assert.Equal(t, "4066749632018", fx.products.products[0].ProductCode)

		sources := fx.sources.all()
		require.Len(t, sources, 2)
		assert.Equal(t, models.PriceTypeRetail, sources[0].PriceType)
		assert.Equal(t, int64(8000), sources[0].PriceCents)
		assert.Equal(t, models.PriceTypeResale, sources[1].PriceType)
		assert.Equal(t, int64(9500), sources[1].PriceCents)
		assert.Equal(t, "p-1", sources[1].SourceProductID)
		assert.Nil(t, sources[1].SizeID)

		opportunities, err := fx.opportunity.FindOpportunities(ctx, OpportunityQuery{})
		require.NoError(t, err)
		require.Len(t, opportunities, 1)
		assert.Equal(t, int64(1500), opportunities[0].ProfitCents)
		assert.Equal(t, 18.8, opportunities[0].ProfitPercentage)
		assert.Equal(t, 2.81, opportunities[0].OpportunityScore)
	})

	t.Run("CountersCoverEveryOutcome", func(t *testing.T) {
		fx := newFlowFixture()
		matched := fx.listing("A", 1000, "")
		notFound := fx.listing("B", 2000, "")
		networkFailure := fx.listing("C", 3000, "")
		panicking := fx.listing("D", 4000, "")
		fx.catalog.addProduct("A", "p-a", "20.00")
		fx.catalog.searchErrs["C"] = &services.NetworkError{Endpoint: "/catalog/search", StatusCode: 503, Body: "unavailable"}
		fx.catalog.panics["D"] = true

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, models.EnrichmentJobStatusCompleted, summary.Status)
		assert.Equal(t, 4, summary.Processed)
		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, 1, summary.NotFound)
		assert.Equal(t, 2, summary.Errors)
		assert.Equal(t, summary.Processed, summary.Matched+summary.NotFound+summary.Errors)
		assert.Equal(t, 25.0, summary.MatchRatePercentage)

		require.Len(t, summary.ErrorLog, 2)
		assert.True(t, strings.HasPrefix(summary.ErrorLog[0], "Listing awin-C-3000: "))
		assert.Contains(t, summary.ErrorLog[1], "panic")
		for _, entry := range summary.ErrorLog {
			assert.Regexp(t, `^Listing \S+: `, entry)
		}

		assert.Equal(t, models.EnrichmentStatusMatched, statusOf(t, fx, matched.ID))
		assert.Equal(t, models.EnrichmentStatusNotFound, statusOf(t, fx, notFound.ID))
		assert.Equal(t, models.EnrichmentStatusError, statusOf(t, fx, networkFailure.ID))
		assert.Equal(t, models.EnrichmentStatusError, statusOf(t, fx, panicking.ID))
		assert.Equal(t, []string{"A", "B", "C", "D"}, fx.catalog.searches)

		stats, err := fx.enrichment.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.TotalListings)
		assert.Equal(t, int64(0), stats.EligibleListings)
		assert.Equal(t, int64(2), stats.ByStatus[models.EnrichmentStatusError])
		assert.Equal(t, 25.0, stats.MatchRatePercentage)

		retry := fastRun()
		retry.IncludeErrored = true
		delete(fx.catalog.searchErrs, "C")
		delete(fx.catalog.panics, "D")
		again, err := fx.enrichment.Run(ctx, retry)
		require.NoError(t, err)
		assert.Equal(t, 2, again.TotalProducts)
		assert.Equal(t, 2, again.NotFound)
	})

	t.Run("AuthFailureAbortsRun", func(t *testing.T) {
		fx := newFlowFixture()
		first := fx.listing("A", 1000, "")
		fx.listing("B", 2000, "")
		fx.catalog.searchErrs["A"] = &services.AuthError{StatusCode: 401, Body: "invalid_grant"}

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.Error(t, err)
		assert.True(t, IsEnrichmentJobFailed(err))
		assert.True(t, services.IsAuthError(err))
		require.NotNil(t, summary)
		assert.Equal(t, models.EnrichmentJobStatusFailed, summary.Status)
		require.NotNil(t, summary.FatalError)
		assert.Contains(t, *summary.FatalError, "401")
		assert.Equal(t, 0, summary.Processed)

		assert.Equal(t, []string{"A"}, fx.catalog.searches)
		assert.Nil(t, fx.listings.get(first.ID).EnrichmentStatus)
		assert.Equal(t, models.EnrichmentJobStatusFailed, fx.jobs.last().Status)
		assert.Equal(t, 1, fx.jobs.finalized)
	})

	t.Run("ProgressIsPersistedPeriodically", func(t *testing.T) {
		fx := newFlowFixture()
		for i := 0; i < 25; i++ {
			fx.listing(fmt.Sprintf("code-%02d", i), int64(1000+i), "")
		}

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, 25, summary.NotFound)

		require.Len(t, fx.jobs.progress, 2)
		assert.Equal(t, 10, fx.jobs.progress[0].Processed)
		assert.Equal(t, 20, fx.jobs.progress[1].Processed)
		assert.Equal(t, 1, fx.jobs.finalized)
		assert.Equal(t, 25, fx.jobs.last().ProcessedProducts)
	})

	t.Run("ProgressFailureIsFatal", func(t *testing.T) {
		fx := newFlowFixture()
		for i := 0; i < 12; i++ {
			fx.listing(fmt.Sprintf("code-%02d", i), int64(1000+i), "")
		}
		fx.jobs.progressErr = errors.New("deadlock detected")

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.Error(t, err)
		assert.True(t, IsEnrichmentJobFailed(err))
		assert.Equal(t, models.EnrichmentJobStatusFailed, summary.Status)
		assert.Equal(t, 10, summary.Processed)
	})

	t.Run("RateLimitSpacesSearches", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("A", 1000, "")
		fx.listing("B", 2000, "")
		fx.listing("C", 3000, "")

		_, err := fx.enrichment.Run(ctx, EnrichmentRunRequest{RateLimitPerMinute: 60})
		require.NoError(t, err)

		require.Len(t, fx.catalog.searchedAt, 3)
		for i := 1; i < len(fx.catalog.searchedAt); i++ {
			gap := fx.catalog.searchedAt[i].Sub(fx.catalog.searchedAt[i-1])
			assert.GreaterOrEqual(t, gap, time.Second)
		}
		assert.Equal(t, []time.Duration{time.Second, time.Second}, fx.clock.Sleeps())
	})

	t.Run("BatchLimitCapsRun", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("A", 3000, "")
		fx.listing("B", 1000, "")
		fx.listing("C", 2000, "")

		summary, err := fx.enrichment.Run(ctx, EnrichmentRunRequest{RateLimitPerMinute: 6000, BatchLimit: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalProducts)
		assert.Equal(t, 2, summary.Processed)
		assert.Equal(t, []string{"B", "C"}, fx.catalog.searches)
	})

	t.Run("RejectsInvalidRequest", func(t *testing.T) {
		tests := []struct {
			name  string
			req   EnrichmentRunRequest
			check func(error) bool
		}{
			{"ZeroRate", EnrichmentRunRequest{}, IsInvalidRateLimit},
			{"NegativeRate", EnrichmentRunRequest{RateLimitPerMinute: -5}, IsInvalidRateLimit},
			{"NegativeBatch", EnrichmentRunRequest{RateLimitPerMinute: 60, BatchLimit: -1}, func(err error) bool {
				return errors.Is(err, ErrInvalidBatchLimit)
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fx := newFlowFixture()
				fx.listing("A", 1000, "")

				summary, err := fx.enrichment.Run(ctx, tt.req)
				require.Error(t, err)
				assert.True(t, tt.check(err))
				assert.Nil(t, summary)
				assert.Empty(t, fx.jobs.jobs)
				assert.Empty(t, fx.catalog.searches)
			})
		}
	})

	t.Run("CancelledRunIsStillFinalized", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("A", 1000, "")

		run, err := fx.enrichment.Start(ctx, fastRun())
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		summary, err := fx.enrichment.Execute(cancelled, run)
		require.Error(t, err)
		assert.True(t, IsEnrichmentJobFailed(err))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, models.EnrichmentJobStatusFailed, summary.Status)
		assert.Equal(t, 1, fx.jobs.finalized)
		assert.Empty(t, fx.catalog.searches)
	})

	t.Run("ExecutesOnce", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("A", 1000, "")

		run, err := fx.enrichment.Start(ctx, fastRun())
		require.NoError(t, err)
		_, err = fx.enrichment.Execute(ctx, run)
		require.NoError(t, err)

		_, err = fx.enrichment.Execute(ctx, run)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEnrichmentAlreadyFinal)
		assert.Equal(t, 1, fx.jobs.finalized)
		assert.Len(t, fx.catalog.searches, 1)
	})

	t.Run("MarkFailureIsFatal", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("A", 1000, "")
		fx.listing("B", 2000, "")
		fx.listings.markErr = func(id uint) error { return errors.New("read-only transaction") }

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.Error(t, err)
		assert.True(t, IsEnrichmentJobFailed(err))
		assert.Equal(t, models.EnrichmentJobStatusFailed, summary.Status)
		assert.Equal(t, []string{"A"}, fx.catalog.searches)
	})

	t.Run("ListingQueryFailureIsFatal", func(t *testing.T) {
		fx := newFlowFixture()
		run, err := fx.enrichment.Start(ctx, fastRun())
		require.NoError(t, err)
		fx.listings.byFilter = errors.New("relation does not exist")

		summary, err := fx.enrichment.Execute(ctx, run)
		require.Error(t, err)
		assert.True(t, IsEnrichmentJobFailed(err))
		assert.Equal(t, models.EnrichmentJobStatusFailed, summary.Status)
	})

	t.Run("SizedVariantProducesSizedResale", func(t *testing.T) {
		fx := newFlowFixture()
		listing := fx.listing("X", 10000, "US 9.5")
		fx.catalog.addProduct("X", "p-x", "")
		fx.catalog.variants["p-x"] = []services.CatalogVariant{
			{
				ProductID: "p-x", VariantID: "v-95", VariantValue: "9.5",
				SizeChart: services.SizeChart{
					DefaultConversion:    &services.SizeConversion{Size: "US M 9.5", Type: "us m"},
					AvailableConversions: []services.SizeConversion{{Size: "EU 43", Type: "eu"}, {Size: "UK 8.5", Type: "uk"}},
				},
			},
			{
				ProductID: "p-x", VariantID: "v-10", VariantValue: "10",
				SizeChart: services.SizeChart{
					DefaultConversion: &services.SizeConversion{Size: "US M 10", Type: "us m"},
				},
			},
		}
		fx.catalog.market["v-95"] = &services.MarketData{
			ProductID:        "p-x",
			VariantID:        "v-95",
			CurrencyCode:     "EUR",
			LowestAskAmount:  testAmount("140.00"),
			HighestBidAmount: testAmount("120.00"),
		}

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, models.EnrichmentStatusMatched, statusOf(t, fx, listing.ID))

		require.Len(t, fx.sizes.sizes, 2)
		assert.Len(t, fx.sizeLogs.entries, 2)
		size := fx.sizes.get(1)
		assert.Equal(t, 9.5, size.USSize)
		assert.Equal(t, models.GenderMen, size.Gender)
		require.NotNil(t, size.EUSize)
		assert.Equal(t, 43.0, *size.EUSize)

		sources := fx.sources.all()
		require.Len(t, sources, 2)
		retail, resale := sources[0], sources[1]
		require.NotNil(t, retail.SizeID)
		assert.Equal(t, uint(1), *retail.SizeID)
		require.NotNil(t, resale.SizeID)
		assert.Equal(t, uint(1), *resale.SizeID)
		assert.Equal(t, "v-95", resale.SourceProductID)
		assert.Equal(t, int64(14000), resale.PriceCents)
		meta := resale.Metadata.Data()
		require.NotNil(t, meta.StockX)
		require.NotNil(t, meta.StockX.HighestBidCents)
		assert.Equal(t, int64(12000), *meta.StockX.HighestBidCents)

		opportunities, err := fx.opportunity.FindOpportunities(ctx, OpportunityQuery{})
		require.NoError(t, err)
		require.Len(t, opportunities, 1)
		assert.Equal(t, int64(4000), opportunities[0].ProfitCents)
		assert.Equal(t, 40.0, opportunities[0].ProfitPercentage)
	})

	t.Run("SizedVariantWithoutAskSkipsResale", func(t *testing.T) {
		fx := newFlowFixture()
		listing := fx.listing("X", 8000, "US 9.5")
		fx.catalog.addProduct("X", "p-x", "95.00")
		fx.catalog.variants["p-x"] = []services.CatalogVariant{
			{
				ProductID: "p-x", VariantID: "v-95", VariantValue: "9.5",
				SizeChart: services.SizeChart{
					DefaultConversion: &services.SizeConversion{Size: "US M 9.5", Type: "us m"},
				},
			},
		}

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, models.EnrichmentStatusMatched, statusOf(t, fx, listing.ID))

		sources := fx.sources.all()
		require.Len(t, sources, 1)
		assert.Equal(t, models.PriceTypeRetail, sources[0].PriceType)
		require.NotNil(t, sources[0].SizeID)
		assert.Equal(t, uint(1), *sources[0].SizeID)
	})

	t.Run("ResaleFailureKeepsRetailRow", func(t *testing.T) {
		fx := newFlowFixture()
		listing := fx.listing("X", 8000, "")
		fx.catalog.addProduct("X", "p-x", "95.00")
		fx.sources.insertErrs = map[models.PriceType]error{models.PriceTypeResale: errors.New("deadlock detected")}

		summary, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Errors)
		assert.Equal(t, models.EnrichmentStatusError, statusOf(t, fx, listing.ID))
		require.Len(t, summary.ErrorLog, 1)
		assert.Contains(t, summary.ErrorLog[0], "failed to record resale price")

		sources := fx.sources.all()
		require.Len(t, sources, 1)
		assert.Equal(t, models.PriceTypeRetail, sources[0].PriceType)

		fx.sources.insertErrs = nil
		retry := fastRun()
		retry.IncludeErrored = true
		summary, err = fx.enrichment.Run(ctx, retry)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Matched)

		sources = fx.sources.all()
		require.Len(t, sources, 2)
		assert.Equal(t, models.PriceTypeRetail, sources[0].PriceType)
		assert.Equal(t, models.PriceTypeResale, sources[1].PriceType)
	})

	t.Run("UnmatchedSizeFallsBackToProductAsk", func(t *testing.T) {
		fx := newFlowFixture()
		fx.listing("X", 8000, "US 12")
		fx.catalog.addProduct("X", "p-x", "95.00")
		fx.catalog.variants["p-x"] = []services.CatalogVariant{
			{
				ProductID: "p-x", VariantID: "v-95", VariantValue: "9.5",
				SizeChart: services.SizeChart{
					DefaultConversion: &services.SizeConversion{Size: "US M 9.5", Type: "us m"},
				},
			},
		}

		_, err := fx.enrichment.Run(ctx, fastRun())
		require.NoError(t, err)

		sources := fx.sources.all()
		require.Len(t, sources, 2)
		assert.Nil(t, sources[0].SizeID)
		assert.Nil(t, sources[1].SizeID)
		assert.Equal(t, int64(9500), sources[1].PriceCents)

		opportunities, err := fx.opportunity.FindOpportunities(ctx, OpportunityQuery{})
		require.NoError(t, err)
		require.Len(t, opportunities, 1)
		assert.Equal(t, int64(1500), opportunities[0].ProfitCents)
	})
}

func TestEnrichmentJobByUUID(t *testing.T) {
	ctx := context.Background()
	fx := newFlowFixture()

	_, err := fx.enrichment.JobByUUID(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, IsEnrichmentJobNotFound(err))

	fx.listing("A", 1000, "")
	summary, err := fx.enrichment.Run(ctx, fastRun())
	require.NoError(t, err)

	loaded, err := fx.enrichment.JobByUUID(ctx, summary.UUID)
	require.NoError(t, err)
	assert.Equal(t, summary.JobID, loaded.JobID)
	assert.Equal(t, models.EnrichmentJobStatusCompleted, loaded.Status)
	assert.Equal(t, 1, loaded.NotFound)
}

func TestMatchRatePercentage(t *testing.T) {
	tests := []struct {
		matched, processed int
		want               float64
	}{
		{0, 0, 0},
		{1, 4, 25},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 5, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.matched, tt.processed), func(t *testing.T) {
			assert.Equal(t, tt.want, MatchRatePercentage(tt.matched, tt.processed))
		})
	}
}
