package businessflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/services"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/repository"
	testingutil "github.com/amirphl/sneaker-price-ledger/testing"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/google/uuid"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// passthroughTx runs the unit of work on the caller's context
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

var _ repository.Transactor = passthroughTx{}

// fakeListingRepo is an in-memory RetailListingRepository
type fakeListingRepo struct {
	mu       sync.Mutex
	listings []*models.RetailListing
	byFilter error
	markErr  func(id uint) error
}

func (r *fakeListingRepo) add(l *models.RetailListing) *models.RetailListing {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = uint(len(r.listings) + 1)
	if l.Currency == "" {
		l.Currency = "EUR"
	}
	r.listings = append(r.listings, l)
	return l
}

func (r *fakeListingRepo) get(id uint) *models.RetailListing {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listings {
		if l.ID == id {
			c := *l
			return &c
		}
	}
	return nil
}

func (r *fakeListingRepo) matches(l *models.RetailListing, f models.RetailListingFilter) bool {
	if f.ID != nil && l.ID != *f.ID {
		return false
	}
	if f.InStock != nil && l.InStock != *f.InStock {
		return false
	}
	if f.EnrichmentStatus != nil && (l.EnrichmentStatus == nil || *l.EnrichmentStatus != *f.EnrichmentStatus) {
		return false
	}
	if f.EligibleForEnrichment {
		if utils.DerefString(l.ProductCode) == "" || !l.InStock {
			return false
		}
		eligible := l.EnrichmentStatus == nil || *l.EnrichmentStatus == models.EnrichmentStatusPending || l.LastEnrichedAt == nil
		if f.IncludeErrored && l.EnrichmentStatus != nil && *l.EnrichmentStatus == models.EnrichmentStatusError {
			eligible = true
		}
		if !eligible {
			return false
		}
	}
	return true
}

func (r *fakeListingRepo) ByID(_ context.Context, id uint) (*models.RetailListing, error) {
	return r.get(id), nil
}

func (r *fakeListingRepo) ByFilter(_ context.Context, f models.RetailListingFilter, limit, offset int) ([]*models.RetailListing, error) {
	if r.byFilter != nil {
		return nil, r.byFilter
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RetailListing
	for _, l := range r.listings {
		if r.matches(l, f) {
			c := *l
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range f.OrderBy {
			if o.Column == models.RetailListingColumnPriceCents && out[i].PriceCents != out[j].PriceCents {
				return out[i].PriceCents < out[j].PriceCents
			}
		}
		return out[i].ID < out[j].ID
	})
	if offset > 0 && offset < len(out) {
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeListingRepo) Save(_ context.Context, l *models.RetailListing) error {
	r.add(l)
	return nil
}

func (r *fakeListingRepo) SaveBatch(ctx context.Context, listings []*models.RetailListing) error {
	for _, l := range listings {
		r.add(l)
	}
	return nil
}

func (r *fakeListingRepo) Count(ctx context.Context, f models.RetailListingFilter) (int64, error) {
	out, err := r.ByFilter(ctx, f, 0, 0)
	return int64(len(out)), err
}

func (r *fakeListingRepo) CountByStatus(_ context.Context) (map[models.EnrichmentStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.EnrichmentStatus]int64)
	for _, l := range r.listings {
		status := models.EnrichmentStatusPending
		if l.EnrichmentStatus != nil {
			status = *l.EnrichmentStatus
		}
		counts[status]++
	}
	return counts, nil
}

func (r *fakeListingRepo) MarkEnrichment(_ context.Context, id uint, status models.EnrichmentStatus, at time.Time, match *models.ListingMatch) error {
	if r.markErr != nil {
		if err := r.markErr(id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listings {
		if l.ID != id {
			continue
		}
		l.EnrichmentStatus = &status
		l.LastEnrichedAt = &at
		if match != nil {
			l.MarketplaceProductID = utils.ToPtr(match.MarketplaceProductID)
			l.MarketplaceURLKey = match.MarketplaceURLKey
			l.MarketplaceStyleID = match.MarketplaceStyleID
		}
		return nil
	}
	return fmt.Errorf("listing %d not found", id)
}

// fakeProductRepo is an in-memory CanonicalProductRepository
type fakeProductRepo struct {
	mu       sync.Mutex
	products []*models.CanonicalProduct
}

func (r *fakeProductRepo) ByID(_ context.Context, id uint) (*models.CanonicalProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeProductRepo) ByFilter(_ context.Context, f models.CanonicalProductFilter, _, _ int) ([]*models.CanonicalProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CanonicalProduct
	for _, p := range r.products {
		if f.ProductCode != nil && p.ProductCode != *f.ProductCode {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProductRepo) Save(_ context.Context, p *models.CanonicalProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uint(len(r.products) + 1)
	r.products = append(r.products, p)
	return nil
}

func (r *fakeProductRepo) Count(ctx context.Context, f models.CanonicalProductFilter) (int64, error) {
	out, err := r.ByFilter(ctx, f, 0, 0)
	return int64(len(out)), err
}

func (r *fakeProductRepo) ByProductCode(ctx context.Context, code string) (*models.CanonicalProduct, error) {
	out, _ := r.ByFilter(ctx, models.CanonicalProductFilter{ProductCode: &code}, 0, 0)
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fakeProductRepo) GetOrCreate(ctx context.Context, p *models.CanonicalProduct) (*models.CanonicalProduct, error) {
	if existing, _ := r.ByProductCode(ctx, p.ProductCode); existing != nil {
		return existing, nil
	}
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	return p, r.Save(ctx, p)
}

// fakeSizeRepo is an in-memory SizeMasterRepository
type fakeSizeRepo struct {
	mu      sync.Mutex
	sizes   []*models.SizeMaster
	updates int
	// beforeInsert runs ahead of InsertIfAbsent to simulate a concurrent writer
	beforeInsert func(r *fakeSizeRepo)
}

func sameCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakeSizeRepo) lookup(key models.SizeMasterKey) *models.SizeMaster {
	for _, s := range r.sizes {
		if s.USSize == key.USSize && s.Gender == key.Gender && sameCategory(s.Category, key.Category) {
			return s
		}
	}
	return nil
}

func (r *fakeSizeRepo) insert(s *models.SizeMaster) {
	s.ID = uint(len(r.sizes) + 1)
	c := *s
	r.sizes = append(r.sizes, &c)
}

func (r *fakeSizeRepo) get(id uint) *models.SizeMaster {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sizes {
		if s.ID == id {
			c := *s
			return &c
		}
	}
	return nil
}

func (r *fakeSizeRepo) ByID(_ context.Context, id uint) (*models.SizeMaster, error) {
	return r.get(id), nil
}

func (r *fakeSizeRepo) ByFilter(_ context.Context, _ models.SizeMasterFilter, _, _ int) ([]*models.SizeMaster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SizeMaster, 0, len(r.sizes))
	for _, s := range r.sizes {
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeSizeRepo) Save(_ context.Context, s *models.SizeMaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(s)
	return nil
}

func (r *fakeSizeRepo) Count(_ context.Context, _ models.SizeMasterFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sizes)), nil
}

func (r *fakeSizeRepo) ByNaturalKey(_ context.Context, key models.SizeMasterKey, _ bool) (*models.SizeMaster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.lookup(key); s != nil {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *fakeSizeRepo) InsertIfAbsent(_ context.Context, s *models.SizeMaster) (bool, error) {
	if r.beforeInsert != nil {
		hook := r.beforeInsert
		r.beforeInsert = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookup(models.SizeMasterKey{USSize: s.USSize, Gender: s.Gender, Category: s.Category}) != nil {
		return false, nil
	}
	r.insert(s)
	return true, nil
}

func (r *fakeSizeRepo) Update(_ context.Context, s *models.SizeMaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sizes {
		if existing.ID == s.ID {
			c := *s
			r.sizes[i] = &c
			r.updates++
			return nil
		}
	}
	return fmt.Errorf("size %d not found", s.ID)
}

// fakeSizeLogRepo is an in-memory SizeValidationLogRepository
type fakeSizeLogRepo struct {
	mu      sync.Mutex
	entries []*models.SizeValidationLog
}

func (r *fakeSizeLogRepo) Save(_ context.Context, e *models.SizeValidationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uint(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeSizeLogRepo) ByFilter(_ context.Context, f models.SizeValidationLogFilter, _, _ int) ([]*models.SizeValidationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SizeValidationLog
	for _, e := range r.entries {
		if f.SizeMasterID != nil && e.SizeMasterID != *f.SizeMasterID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeSizeLogRepo) Count(ctx context.Context, f models.SizeValidationLogFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, f, 0, 0)
	return int64(len(out)), nil
}

// fakePriceSourceRepo is an in-memory PriceSourceRepository; sizes resolves Size for ListWithSizes
type fakePriceSourceRepo struct {
	mu        sync.Mutex
	sources   []*models.PriceSource
	sizes      *fakeSizeRepo
	updateErr  error
	insertErrs map[models.PriceType]error
}

func sameSizeID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakePriceSourceRepo) all() []*models.PriceSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PriceSource, 0, len(r.sources))
	for _, s := range r.sources {
		c := *s
		out = append(out, &c)
	}
	return out
}

func (r *fakePriceSourceRepo) lookup(key models.PriceSourceKey) *models.PriceSource {
	for _, s := range r.sources {
		if s.ProductID == key.ProductID && s.SourceType == key.SourceType &&
			s.SourceProductID == key.SourceProductID && sameSizeID(s.SizeID, key.SizeID) {
			return s
		}
	}
	return nil
}

func (r *fakePriceSourceRepo) ByID(_ context.Context, id uint) (*models.PriceSource, error) {
	for _, s := range r.all() {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakePriceSourceRepo) ByFilter(ctx context.Context, f models.PriceSourceFilter, _, _ int) ([]*models.PriceSource, error) {
	var out []*models.PriceSource
	for _, s := range r.all() {
		if f.ProductID != nil && s.ProductID != *f.ProductID {
			continue
		}
		if f.SourceType != nil && s.SourceType != *f.SourceType {
			continue
		}
		if len(f.PriceTypes) > 0 && !containsPriceType(f.PriceTypes, s.PriceType) {
			continue
		}
		if f.InStock != nil && s.InStock != *f.InStock {
			continue
		}
		if f.WithSize && s.SizeID == nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func containsPriceType(types []models.PriceType, t models.PriceType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (r *fakePriceSourceRepo) ListWithSizes(ctx context.Context, f models.PriceSourceFilter) ([]*models.PriceSource, error) {
	out, err := r.ByFilter(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, s := range out {
		if s.SizeID != nil && r.sizes != nil {
			s.Size = r.sizes.get(*s.SizeID)
		}
	}
	return out, nil
}

func (r *fakePriceSourceRepo) Save(_ context.Context, s *models.PriceSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uint(len(r.sources) + 1)
	c := *s
	r.sources = append(r.sources, &c)
	return nil
}

func (r *fakePriceSourceRepo) Count(ctx context.Context, f models.PriceSourceFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, f, 0, 0)
	return int64(len(out)), nil
}

func (r *fakePriceSourceRepo) ByKey(_ context.Context, key models.PriceSourceKey, _ bool) (*models.PriceSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.lookup(key); s != nil {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *fakePriceSourceRepo) InsertIfAbsent(ctx context.Context, s *models.PriceSource) (bool, error) {
	r.mu.Lock()
	if err := r.insertErrs[s.PriceType]; err != nil {
		r.mu.Unlock()
		return false, err
	}
	if r.lookup(s.Key()) != nil {
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()
	return true, r.Save(ctx, s)
}

func (r *fakePriceSourceRepo) Update(_ context.Context, s *models.PriceSource) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sources {
		if existing.ID == s.ID {
			c := *s
			r.sources[i] = &c
			return nil
		}
	}
	return fmt.Errorf("price source %d not found", s.ID)
}

// fakePriceHistoryRepo is an in-memory PriceHistoryRepository
type fakePriceHistoryRepo struct {
	mu      sync.Mutex
	entries []*models.PriceHistory
	saveErr error
}

func (r *fakePriceHistoryRepo) Save(_ context.Context, e *models.PriceHistory) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uint(len(r.entries) + 1)
	c := *e
	r.entries = append(r.entries, &c)
	return nil
}

func (r *fakePriceHistoryRepo) ByFilter(_ context.Context, f models.PriceHistoryFilter, _, _ int) ([]*models.PriceHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PriceHistory
	for _, e := range r.entries {
		if f.PriceSourceID != nil && e.PriceSourceID != *f.PriceSourceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakePriceHistoryRepo) Count(ctx context.Context, f models.PriceHistoryFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, f, 0, 0)
	return int64(len(out)), nil
}

// fakeJobRepo is an in-memory EnrichmentJobRepository that records every write
type fakeJobRepo struct {
	mu          sync.Mutex
	jobs        []*models.EnrichmentJob
	progress    []models.EnrichmentJobProgress
	finalized   int
	progressErr error
	saveErr     error
}

func (r *fakeJobRepo) ByID(_ context.Context, id uint) (*models.EnrichmentJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			c := *j
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) ByFilter(_ context.Context, _ models.EnrichmentJobFilter, _, _ int) ([]*models.EnrichmentJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.EnrichmentJob(nil), r.jobs...), nil
}

func (r *fakeJobRepo) Save(_ context.Context, j *models.EnrichmentJob) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j.ID = uint(len(r.jobs) + 1)
	c := *j
	r.jobs = append(r.jobs, &c)
	return nil
}

func (r *fakeJobRepo) Count(_ context.Context, _ models.EnrichmentJobFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.jobs)), nil
}

func (r *fakeJobRepo) ByUUID(_ context.Context, id uuid.UUID) (*models.EnrichmentJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.UUID == id {
			c := *j
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) UpdateProgress(_ context.Context, id uint, p models.EnrichmentJobProgress) error {
	if r.progressErr != nil {
		return r.progressErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID != id {
			continue
		}
		if j.Status != models.EnrichmentJobStatusRunning {
			return errors.New("job is not running")
		}
		j.ProcessedProducts, j.MatchedProducts, j.NotFoundProducts, j.FailedProducts = p.Processed, p.Matched, p.NotFound, p.Failed
		p.ErrorLog = append([]string(nil), p.ErrorLog...)
		r.progress = append(r.progress, p)
		return nil
	}
	return fmt.Errorf("job %d not found", id)
}

func (r *fakeJobRepo) Finalize(ctx context.Context, job *models.EnrichmentJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.jobs {
		if j.ID != job.ID {
			continue
		}
		if j.Status.IsTerminal() {
			return errors.New("job already finalized")
		}
		c := *job
		r.jobs[i] = &c
		r.finalized++
		return nil
	}
	return fmt.Errorf("job %d not found", job.ID)
}

func (r *fakeJobRepo) last() *models.EnrichmentJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return nil
	}
	c := *r.jobs[len(r.jobs)-1]
	return &c
}

// fakeCatalog is a scripted CatalogSearcher recording when each search happened
type fakeCatalog struct {
	mu         sync.Mutex
	clock      utils.Clock
	results    map[string]*services.CatalogSearchResult
	searchErrs map[string]error
	panics     map[string]bool
	variants   map[string][]services.CatalogVariant
	market     map[string]*services.MarketData
	searches   []string
	searchedAt []time.Time
}

func newFakeCatalog(clock utils.Clock) *fakeCatalog {
	return &fakeCatalog{
		clock:      clock,
		results:    make(map[string]*services.CatalogSearchResult),
		searchErrs: make(map[string]error),
		panics:     make(map[string]bool),
		variants:   make(map[string][]services.CatalogVariant),
		market:     make(map[string]*services.MarketData),
	}
}

// addProduct makes code resolve to a single hit with the given product-level lowest ask
func (c *fakeCatalog) addProduct(code, productID, lowestAsk string) {
	product := services.CatalogProduct{
		ProductID:   productID,
		URLKey:      "product-" + productID,
		StyleID:     code,
		ProductType: "sneakers",
		Title:       "Sneaker " + productID,
		Brand:       "Nike",
	}
	if lowestAsk != "" {
		product.Market = &services.ProductMarket{LowestAsk: testAmount(lowestAsk)}
	}
	c.results[code] = &services.CatalogSearchResult{Count: 1, PageNumber: 1, PageSize: 1, Products: []services.CatalogProduct{product}}
}

func (c *fakeCatalog) Search(_ context.Context, query string, _, _ int) (*services.CatalogSearchResult, error) {
	c.mu.Lock()
	c.searches = append(c.searches, query)
	c.searchedAt = append(c.searchedAt, c.clock.Now())
	panics, err, result := c.panics[query], c.searchErrs[query], c.results[query]
	c.mu.Unlock()

	if panics {
		panic("catalog exploded")
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &services.CatalogSearchResult{}, nil
	}
	return result, nil
}

func (c *fakeCatalog) ProductVariants(_ context.Context, productID string) ([]services.CatalogVariant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variants[productID], nil
}

func (c *fakeCatalog) VariantMarketData(_ context.Context, productID, variantID, _ string) (*services.MarketData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if md, ok := c.market[variantID]; ok {
		return md, nil
	}
	return nil, &services.NotFoundError{Resource: "market data " + productID + "/" + variantID}
}

func testAmount(s string) services.Amount {
	var a services.Amount
	if err := a.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		panic(err)
	}
	return a
}

// flowFixture wires every flow to shared in-memory state
type flowFixture struct {
	clock       *testingutil.FakeClock
	listings    *fakeListingRepo
	products    *fakeProductRepo
	sizes       *fakeSizeRepo
	sizeLogs    *fakeSizeLogRepo
	sources     *fakePriceSourceRepo
	history     *fakePriceHistoryRepo
	jobs        *fakeJobRepo
	catalog     *fakeCatalog
	resolver    SizeConflictResolver
	ledger      PriceLedger
	enrichment  EnrichmentFlow
	opportunity OpportunityFlow
}

func newFlowFixture() *flowFixture {
	clock := testingutil.NewFakeClock(testEpoch)
	sizes := &fakeSizeRepo{}
	fx := &flowFixture{
		clock:    clock,
		listings: &fakeListingRepo{},
		products: &fakeProductRepo{},
		sizes:    sizes,
		sizeLogs: &fakeSizeLogRepo{},
		sources:  &fakePriceSourceRepo{sizes: sizes},
		history:  &fakePriceHistoryRepo{},
		jobs:     &fakeJobRepo{},
		catalog:  newFakeCatalog(clock),
	}
	fx.resolver = NewSizeConflictResolver(fx.sizes, fx.sizeLogs, passthroughTx{}, clock, discardLogger())
	fx.ledger = NewPriceLedger(fx.sources, fx.history, passthroughTx{}, clock)
	fx.enrichment = NewEnrichmentFlow(fx.listings, fx.products, fx.jobs, fx.catalog, fx.resolver, fx.ledger, clock, discardLogger())
	fx.opportunity = NewOpportunityFlow(fx.sources, clock)
	return fx
}

// listing adds an eligible in-stock listing
func (fx *flowFixture) listing(code string, priceCents int64, size string) *models.RetailListing {
	return fx.listings.add(&models.RetailListing{
		SourceType:      models.SourceTypeAwin,
		SourceProductID: fmt.Sprintf("awin-%s-%d", code, priceCents),
		ProductCode:     utils.NonEmptyPtr(code),
		Size:            utils.NonEmptyPtr(size),
		PriceCents:      priceCents,
		Currency:        "EUR",
		InStock:         true,
		MerchantName:    utils.ToPtr("Test Merchant"),
	})
}
