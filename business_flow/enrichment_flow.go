package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/services"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/repository"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const finalizeTimeout = 30 * time.Second

// EnrichmentRunRequest configures one enrichment run
type EnrichmentRunRequest struct {
	RateLimitPerMinute int
	// BatchLimit caps the number of listings; zero processes every eligible listing
	BatchLimit int
	// IncludeErrored retries listings whose last enrichment failed
	IncludeErrored bool
}

// JobSummary is the externally visible state of an enrichment job
type JobSummary struct {
	JobID               uint
	UUID                uuid.UUID
	Status              models.EnrichmentJobStatus
	TotalProducts       int
	Processed           int
	Matched             int
	NotFound            int
	Errors              int
	MatchRatePercentage float64
	StartedAt           time.Time
	CompletedAt         *time.Time
	FatalError          *string
	ErrorLog            []string
}

// EnrichmentRun is a started job waiting to be executed
type EnrichmentRun struct {
	Job      *models.EnrichmentJob
	request  EnrichmentRunRequest
	limiter  *services.RequestLimiter
	executed atomic.Bool
}

// EnrichmentFlow drives rate-limited marketplace enrichment of retail listings
type EnrichmentFlow interface {
	Run(ctx context.Context, req EnrichmentRunRequest) (*JobSummary, error)
	Start(ctx context.Context, req EnrichmentRunRequest) (*EnrichmentRun, error)
	Execute(ctx context.Context, run *EnrichmentRun) (*JobSummary, error)
	Stats(ctx context.Context) (*models.EnrichmentStats, error)
	JobByUUID(ctx context.Context, id uuid.UUID) (*JobSummary, error)
}

// EnrichmentFlowImpl implements EnrichmentFlow
type EnrichmentFlowImpl struct {
	listingRepo      repository.RetailListingRepository
	productRepo      repository.CanonicalProductRepository
	jobRepo          repository.EnrichmentJobRepository
	catalog          services.CatalogSearcher
	sizes            SizeConflictResolver
	ledger           PriceLedger
	clock            utils.Clock
	logger           *log.Logger
	progressInterval int
}

// NewEnrichmentFlow creates a new enrichment flow
func NewEnrichmentFlow(
	listingRepo repository.RetailListingRepository,
	productRepo repository.CanonicalProductRepository,
	jobRepo repository.EnrichmentJobRepository,
	catalog services.CatalogSearcher,
	sizes SizeConflictResolver,
	ledger PriceLedger,
	clock utils.Clock,
	logger *log.Logger,
) EnrichmentFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &EnrichmentFlowImpl{
		listingRepo:      listingRepo,
		productRepo:      productRepo,
		jobRepo:          jobRepo,
		catalog:          catalog,
		sizes:            sizes,
		ledger:           ledger,
		clock:            utils.ClockOrSystem(clock),
		logger:           logger,
		progressInterval: utils.EnrichmentProgressInterval,
	}
}

// Run starts a job and executes it to completion.
// A job that failed after creation returns both its summary and an error.
func (f *EnrichmentFlowImpl) Run(ctx context.Context, req EnrichmentRunRequest) (*JobSummary, error) {
	run, err := f.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.Execute(ctx, run)
}

// Start validates the request and records a running job sized to the eligible listings
func (f *EnrichmentFlowImpl) Start(ctx context.Context, req EnrichmentRunRequest) (*EnrichmentRun, error) {
	if req.RateLimitPerMinute <= 0 {
		return nil, NewBusinessErrorf("INVALID_RATE_LIMIT", "Invalid rate limit %d", ErrInvalidRateLimit, req.RateLimitPerMinute)
	}
	if req.BatchLimit < 0 {
		return nil, NewBusinessErrorf("INVALID_BATCH_LIMIT", "Invalid batch limit %d", ErrInvalidBatchLimit, req.BatchLimit)
	}

	limiter, err := services.NewRequestLimiter(req.RateLimitPerMinute, f.clock)
	if err != nil {
		return nil, NewBusinessError("INVALID_RATE_LIMIT", "Invalid rate limit", fmt.Errorf("%w: %w", ErrInvalidRateLimit, err))
	}

	eligible, err := f.listingRepo.Count(ctx, eligibleFilter(req))
	if err != nil {
		return nil, NewBusinessError("ELIGIBLE_LISTINGS_COUNT_FAILED", "Failed to count eligible listings", err)
	}
	total := int(eligible)
	if req.BatchLimit > 0 && total > req.BatchLimit {
		total = req.BatchLimit
	}

	id := uuid.New()
	startedAt := f.clock.Now()
	job := &models.EnrichmentJob{
		UUID:          id,
		JobType:       models.EnrichmentJobTypeMarketplace,
		Status:        models.EnrichmentJobStatusRunning,
		TotalProducts: total,
		StartedAt:     startedAt,
		ResultsSummary: datatypes.NewJSONType(models.EnrichmentResultsSummary{
			JobUUID:   id,
			Status:    models.EnrichmentJobStatusRunning,
			StartedAt: startedAt,
		}),
		ErrorLog: pq.StringArray{},
	}
	if err := f.jobRepo.Save(ctx, job); err != nil {
		return nil, NewBusinessError("ENRICHMENT_JOB_CREATION_FAILED", "Failed to create enrichment job", err)
	}

	f.logger.Printf("enrichment job started: job_uuid=%s total=%d rate_limit_per_minute=%d", id, total, req.RateLimitPerMinute)
	return &EnrichmentRun{Job: job, request: req, limiter: limiter}, nil
}

// Execute processes the run's listings one at a time and finalizes the job exactly once
func (f *EnrichmentFlowImpl) Execute(ctx context.Context, run *EnrichmentRun) (*JobSummary, error) {
	if run == nil || run.Job == nil {
		return nil, NewBusinessError("ENRICHMENT_JOB_NOT_FOUND", "Enrichment run has no job", ErrEnrichmentJobNotFound)
	}
	if !run.executed.CompareAndSwap(false, true) {
		return nil, NewBusinessErrorf("ENRICHMENT_JOB_ALREADY_FINAL", "Enrichment job %s already executed", ErrEnrichmentAlreadyFinal, run.Job.UUID)
	}

	var progress models.EnrichmentJobProgress
	fatal := f.processListings(ctx, run, &progress)

	summary, err := f.finalize(ctx, run.Job, &progress, fatal)
	if err != nil {
		return summary, NewBusinessError("ENRICHMENT_JOB_FINALIZE_FAILED", "Failed to finalize enrichment job", err)
	}
	if fatal != nil {
		return summary, NewBusinessError("ENRICHMENT_JOB_FAILED", "Enrichment job failed",
			fmt.Errorf("%w: %w", ErrEnrichmentJobFailed, fatal))
	}
	return summary, nil
}

// processListings returns the error that aborted the run, nil when every listing was handled
func (f *EnrichmentFlowImpl) processListings(ctx context.Context, run *EnrichmentRun, progress *models.EnrichmentJobProgress) error {
	filter := eligibleFilter(run.request)
	filter.OrderBy = []models.RetailListingOrder{{Column: models.RetailListingColumnPriceCents}}

	listings, err := f.listingRepo.ByFilter(ctx, filter, run.request.BatchLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to load eligible listings: %w", err)
	}

	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := run.limiter.Wait(ctx); err != nil {
			return err
		}

		status, match, err := f.safeProcessListing(ctx, listing)
		if err != nil {
			if isFatalEnrichmentError(ctx, err) {
				return err
			}
			status, match = models.EnrichmentStatusError, nil
			progress.ErrorLog = append(progress.ErrorLog, fmt.Sprintf("Listing %s: %v", listing.SourceProductID, err))
			f.logger.Printf("enrichment listing failed: job_uuid=%s listing_id=%d error=%v", run.Job.UUID, listing.ID, err)
		}

		if err := f.listingRepo.MarkEnrichment(ctx, listing.ID, status, f.clock.Now(), match); err != nil {
			return fmt.Errorf("failed to mark listing %d as %s: %w", listing.ID, status, err)
		}

		progress.Processed++
		switch status {
		case models.EnrichmentStatusMatched:
			progress.Matched++
		case models.EnrichmentStatusNotFound:
			progress.NotFound++
		default:
			progress.Failed++
		}
		enrichmentListingsTotal.WithLabelValues(string(status)).Inc()

		if progress.Processed%f.progressInterval == 0 {
			if err := f.jobRepo.UpdateProgress(ctx, run.Job.ID, *progress); err != nil {
				return fmt.Errorf("failed to persist job progress: %w", err)
			}
		}
	}
	return nil
}

// safeProcessListing turns a panic while enriching one listing into a per-record error
func (f *EnrichmentFlowImpl) safeProcessListing(ctx context.Context, listing *models.RetailListing) (status models.EnrichmentStatus, match *models.ListingMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, match, err = models.EnrichmentStatusError, nil, fmt.Errorf("panic while enriching listing: %v", r)
		}
	}()
	return f.processListing(ctx, listing)
}

func (f *EnrichmentFlowImpl) processListing(ctx context.Context, listing *models.RetailListing) (models.EnrichmentStatus, *models.ListingMatch, error) {
	code := utils.DerefString(listing.ProductCode)
	if code == "" {
		return "", nil, ErrListingWithoutCode
	}

	result, err := f.catalog.Search(ctx, code, 1, 1)
	if err != nil {
		return "", nil, fmt.Errorf("catalog search failed: %w", err)
	}
	if result == nil || len(result.Products) == 0 {
		return models.EnrichmentStatusNotFound, nil, nil
	}
	// First hit is taken as the match
	hit := result.Products[0]

	product, err := f.productRepo.GetOrCreate(ctx, &models.CanonicalProduct{
		ProductCode:          code,
		Name:                 firstNonEmpty(hit.Title, utils.DerefString(listing.ProductName)),
		BrandName:            firstNonEmpty(hit.Brand, utils.DerefString(listing.BrandName)),
		MarketplaceProductID: utils.NonEmptyPtr(hit.ProductID),
		StyleID:              utils.NonEmptyPtr(hit.StyleID),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve canonical product: %w", err)
	}

	variant, sizeID, err := f.reconcileVariants(ctx, hit, listing)
	if err != nil {
		return "", nil, err
	}

	if _, err := f.ledger.Upsert(ctx, retailPriceInput(product.ID, sizeID, listing)); err != nil {
		return "", nil, fmt.Errorf("failed to record retail price: %w", err)
	}

	resale, err := f.resalePriceInput(ctx, product.ID, hit, variant, sizeID, listing.Currency)
	if err != nil {
		return "", nil, err
	}
	if resale != nil {
		if _, err := f.ledger.Upsert(ctx, *resale); err != nil {
			return "", nil, fmt.Errorf("failed to record resale price: %w", err)
		}
	} else if variant != nil {
		f.logger.Printf("enrichment resale skipped: listing_id=%d variant_id=%s reason=no_variant_ask", listing.ID, variant.VariantID)
	}

	return models.EnrichmentStatusMatched, &models.ListingMatch{
		MarketplaceProductID: hit.ProductID,
		MarketplaceURLKey:    utils.NonEmptyPtr(hit.URLKey),
		MarketplaceStyleID:   utils.NonEmptyPtr(hit.StyleID),
	}, nil
}

// reconcileVariants reconciles the size of every variant and returns the one matching the listing's size
func (f *EnrichmentFlowImpl) reconcileVariants(ctx context.Context, hit services.CatalogProduct, listing *models.RetailListing) (*services.CatalogVariant, *uint, error) {
	variants, err := f.catalog.ProductVariants(ctx, hit.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch variants: %w", err)
	}

	label := utils.DerefString(listing.Size)
	listingSize := ParseSize(label)
	var region models.SizeRegion
	if listingSize != nil {
		region = InferSizeRegion(label, *listingSize)
	}
	listingGender, _ := DetectSizeGender(label)
	productGender := NormalizeGender(hit.ProductAttributes.Gender)

	var (
		matched   *services.CatalogVariant
		matchedID *uint
	)
	for i := range variants {
		variant := variants[i]
		candidate, ok := SizeCandidateFromVariant(variant, productGender, nil)
		if !ok {
			continue
		}

		sizeID, err := f.sizes.Reconcile(ctx, candidate, SizeSourceIDs{
			ProductID: utils.NonEmptyPtr(hit.ProductID),
			VariantID: utils.NonEmptyPtr(variant.VariantID),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reconcile size of variant %s: %w", variant.VariantID, err)
		}

		if matched == nil && listingSize != nil && candidateMatchesSize(candidate, region, *listingSize, listingGender) {
			matched, matchedID = &variant, utils.ToPtr(sizeID)
		}
	}
	return matched, matchedID, nil
}

func (f *EnrichmentFlowImpl) resalePriceInput(
	ctx context.Context,
	productID uint,
	hit services.CatalogProduct,
	variant *services.CatalogVariant,
	sizeID *uint,
	currency string,
) (*PriceSourceInput, error) {
	meta := &models.StockXPriceMetadata{
		ProductID:       hit.ProductID,
		URLKey:          utils.NonEmptyPtr(hit.URLKey),
		StyleID:         utils.NonEmptyPtr(hit.StyleID),
		ProductCategory: utils.NonEmptyPtr(hit.ProductType),
	}
	input := &PriceSourceInput{
		ProductID:       productID,
		SourceType:      models.SourceTypeStockX,
		SourceProductID: hit.ProductID,
		SourceName:      utils.ToPtr("StockX"),
		PriceType:       models.PriceTypeResale,
		Currency:        currency,
		InStock:         true,
	}
	if hit.URLKey != "" {
		input.SourceURL = utils.ToPtr(utils.MarketplaceProductURL(hit.URLKey))
	}

	if variant != nil {
		market, err := f.catalog.VariantMarketData(ctx, hit.ProductID, variant.VariantID, currency)
		if err != nil && !services.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to fetch market data of variant %s: %w", variant.VariantID, err)
		}
		if market != nil {
			if cents, ok := market.LowestAskAmount.Cents(); ok {
				input.PriceCents = cents
				input.SizeID = sizeID
				input.SourceProductID = variant.VariantID
				if market.CurrencyCode != "" {
					input.Currency = market.CurrencyCode
				}
				meta.VariantID = utils.NonEmptyPtr(variant.VariantID)
				if bid, ok := market.HighestBidAmount.Cents(); ok {
					meta.HighestBidCents = &bid
				}
				input.Metadata = models.PriceSourceMetadata{Source: models.SourceTypeStockX, StockX: meta}
				return input, nil
			}
		}
		// A product-level ask is sizeless and would never pair with the sized retail row
		return nil, nil
	}

	if hit.Market == nil {
		return nil, nil
	}
	cents, ok := hit.Market.LowestAsk.Cents()
	if !ok {
		return nil, nil
	}
	input.PriceCents = cents
	if bid, ok := hit.Market.HighestBid.Cents(); ok {
		meta.HighestBidCents = &bid
	}
	input.Metadata = models.PriceSourceMetadata{Source: models.SourceTypeStockX, StockX: meta}
	return input, nil
}

func retailPriceInput(productID uint, sizeID *uint, listing *models.RetailListing) PriceSourceInput {
	meta := models.PriceSourceMetadata{Source: listing.SourceType}
	if listing.SourceType == models.SourceTypeAwin {
		meta.Awin = &models.AwinPriceMetadata{
			MerchantName: listing.MerchantName,
			BrandName:    listing.BrandName,
			Colour:       listing.Colour,
			Size:         listing.Size,
		}
	}
	return PriceSourceInput{
		ProductID:       productID,
		SizeID:          sizeID,
		SourceType:      listing.SourceType,
		SourceProductID: listing.SourceProductID,
		SourceName:      listing.MerchantName,
		PriceType:       models.PriceTypeRetail,
		PriceCents:      listing.PriceCents,
		Currency:        listing.Currency,
		InStock:         listing.InStock,
		StockQuantity:   listing.StockQuantity,
		AffiliateLink:   listing.AffiliateLink,
		Metadata:        meta,
	}
}

// candidateMatchesSize reports whether the candidate's size in region equals value
func candidateMatchesSize(candidate SizeCandidate, region models.SizeRegion, value float64, gender string) bool {
	if gender != "" && candidate.Gender != gender && candidate.Gender != models.GenderUnisex {
		return false
	}
	v := candidate.Value(region)
	return v != nil && utils.RoundFloat(*v, 2) == utils.RoundFloat(value, 2)
}

// finalize writes the terminal job state; it runs on a context detached from cancellation
func (f *EnrichmentFlowImpl) finalize(ctx context.Context, job *models.EnrichmentJob, progress *models.EnrichmentJobProgress, fatal error) (*JobSummary, error) {
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	completedAt := f.clock.Now()
	status := models.EnrichmentJobStatusCompleted
	var fatalMessage *string
	if fatal != nil {
		status = models.EnrichmentJobStatusFailed
		fatalMessage = utils.ToPtr(fatal.Error())
	}

	job.Status = status
	job.ProcessedProducts = progress.Processed
	job.MatchedProducts = progress.Matched
	job.NotFoundProducts = progress.NotFound
	job.FailedProducts = progress.Failed
	job.CompletedAt = &completedAt
	job.ErrorLog = pq.StringArray(progress.ErrorLog)
	job.ResultsSummary = datatypes.NewJSONType(models.EnrichmentResultsSummary{
		JobUUID:             job.UUID,
		Status:              status,
		TotalProcessed:      progress.Processed,
		Matched:             progress.Matched,
		NotFound:            progress.NotFound,
		Errors:              progress.Failed,
		MatchRatePercentage: MatchRatePercentage(progress.Matched, progress.Processed),
		StartedAt:           job.StartedAt,
		CompletedAt:         &completedAt,
		FatalError:          fatalMessage,
	})

	err := f.jobRepo.Finalize(finalizeCtx, job)

	enrichmentJobsTotal.WithLabelValues(string(status)).Inc()
	enrichmentJobDuration.Observe(completedAt.Sub(job.StartedAt).Seconds())
	f.logger.Printf("enrichment job finished: job_uuid=%s status=%s processed=%d matched=%d not_found=%d errors=%d",
		job.UUID, status, progress.Processed, progress.Matched, progress.NotFound, progress.Failed)
	if fatal != nil {
		f.logger.Printf("enrichment job fatal error: job_uuid=%s error=%v", job.UUID, fatal)
	}

	return summarizeJob(job), err
}

// Stats reports listing counts per enrichment status
func (f *EnrichmentFlowImpl) Stats(ctx context.Context) (*models.EnrichmentStats, error) {
	total, err := f.listingRepo.Count(ctx, models.RetailListingFilter{})
	if err != nil {
		return nil, NewBusinessError("ENRICHMENT_STATS_FAILED", "Failed to count listings", err)
	}
	eligible, err := f.listingRepo.Count(ctx, models.RetailListingFilter{EligibleForEnrichment: true})
	if err != nil {
		return nil, NewBusinessError("ENRICHMENT_STATS_FAILED", "Failed to count eligible listings", err)
	}
	byStatus, err := f.listingRepo.CountByStatus(ctx)
	if err != nil {
		return nil, NewBusinessError("ENRICHMENT_STATS_FAILED", "Failed to count listings by status", err)
	}

	matched := byStatus[models.EnrichmentStatusMatched]
	attempted := matched + byStatus[models.EnrichmentStatusNotFound] + byStatus[models.EnrichmentStatusError]
	return &models.EnrichmentStats{
		TotalListings:       total,
		EligibleListings:    eligible,
		ByStatus:            byStatus,
		MatchRatePercentage: MatchRatePercentage(int(matched), int(attempted)),
	}, nil
}

// JobByUUID returns the current state of a job
func (f *EnrichmentFlowImpl) JobByUUID(ctx context.Context, id uuid.UUID) (*JobSummary, error) {
	job, err := f.jobRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("ENRICHMENT_JOB_LOOKUP_FAILED", "Failed to load enrichment job", err)
	}
	if job == nil {
		return nil, NewBusinessErrorf("ENRICHMENT_JOB_NOT_FOUND", "Enrichment job %s not found", ErrEnrichmentJobNotFound, id)
	}
	return summarizeJob(job), nil
}

// MatchRatePercentage is matched/processed as a percentage rounded to 2 decimals, 0 when nothing was processed
func MatchRatePercentage(matched, processed int) float64 {
	if processed <= 0 {
		return 0
	}
	return utils.RoundFloat(float64(matched)/float64(processed)*100, 2)
}

func summarizeJob(job *models.EnrichmentJob) *JobSummary {
	summary := job.ResultsSummary.Data()
	return &JobSummary{
		JobID:               job.ID,
		UUID:                job.UUID,
		Status:              job.Status,
		TotalProducts:       job.TotalProducts,
		Processed:           job.ProcessedProducts,
		Matched:             job.MatchedProducts,
		NotFound:            job.NotFoundProducts,
		Errors:              job.FailedProducts,
		MatchRatePercentage: MatchRatePercentage(job.MatchedProducts, job.ProcessedProducts),
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
		FatalError:          summary.FatalError,
		ErrorLog:            append([]string(nil), job.ErrorLog...),
	}
}

func eligibleFilter(req EnrichmentRunRequest) models.RetailListingFilter {
	return models.RetailListingFilter{EligibleForEnrichment: true, IncludeErrored: req.IncludeErrored}
}

// isFatalEnrichmentError reports errors that abort the whole run instead of one listing
func isFatalEnrichmentError(ctx context.Context, err error) bool {
	if services.IsAuthError(err) {
		return true
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return true
	}
	return false
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if p := utils.NonEmptyPtr(v); p != nil {
			return p
		}
	}
	return nil
}
