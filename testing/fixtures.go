package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateRetailListing creates an in-stock awin listing for productCode priced at priceCents.
// Pass an empty productCode for a listing that is never eligible for enrichment.
func (tf *TestFixtures) CreateRetailListing(productCode, size string, priceCents int64) (*models.RetailListing, error) {
	listing := &models.RetailListing{
		SourceType:      models.SourceTypeAwin,
		SourceProductID: fmt.Sprintf("awin-%d", rand.Intn(1_000_000_000)),
		ProductName:     utils.ToPtr("Air Jordan 1 Retro High OG"),
		BrandName:       utils.ToPtr("Jordan"),
		MerchantName:    utils.ToPtr("Test Merchant"),
		ProductCode:     utils.NonEmptyPtr(productCode),
		Size:            utils.NonEmptyPtr(size),
		PriceCents:      priceCents,
		Currency:        "EUR",
		InStock:         true,
		AffiliateLink:   utils.ToPtr("https://www.awin1.com/pclick.php?p=1"),
	}

	if err := tf.DB.DB.Create(listing).Error; err != nil {
		return nil, fmt.Errorf("failed to create test retail listing: %w", err)
	}
	return listing, nil
}

// CreateCanonicalProduct creates a canonical product for productCode
func (tf *TestFixtures) CreateCanonicalProduct(productCode string) (*models.CanonicalProduct, error) {
	product := &models.CanonicalProduct{
		UUID:        uuid.New(),
		ProductCode: productCode,
		Name:        utils.ToPtr("Test Sneaker " + productCode),
		BrandName:   utils.ToPtr("Nike"),
	}

	if err := tf.DB.DB.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create test canonical product: %w", err)
	}
	return product, nil
}

// CreateSizeMaster creates an uncategorized size record with the given US and EU values
func (tf *TestFixtures) CreateSizeMaster(gender string, usSize, euSize float64) (*models.SizeMaster, error) {
	size := &models.SizeMaster{
		Gender: gender,
		USSize: usSize,
		EUSize: utils.ToPtr(euSize),
	}

	if err := tf.DB.DB.Create(size).Error; err != nil {
		return nil, fmt.Errorf("failed to create test size: %w", err)
	}
	return size, nil
}

// CreatePriceSource creates a ledger row for product without writing history
func (tf *TestFixtures) CreatePriceSource(product *models.CanonicalProduct, size *models.SizeMaster, sourceType models.SourceType, priceType models.PriceType, priceCents int64) (*models.PriceSource, error) {
	source := &models.PriceSource{
		ProductID:       product.ID,
		SourceType:      sourceType,
		SourceProductID: fmt.Sprintf("%s-%d", sourceType, rand.Intn(1_000_000_000)),
		PriceType:       priceType,
		PriceCents:      priceCents,
		Currency:        "EUR",
		InStock:         true,
		Metadata:        datatypes.NewJSONType(models.PriceSourceMetadata{Source: sourceType}),
		LastUpdated:     utils.UTCNow(),
	}
	if size != nil {
		source.SizeID = &size.ID
	}

	if err := tf.DB.DB.Create(source).Error; err != nil {
		return nil, fmt.Errorf("failed to create test price source: %w", err)
	}
	return source, nil
}

// CreateRunningJob creates an enrichment job in the running state
func (tf *TestFixtures) CreateRunningJob(total int) (*models.EnrichmentJob, error) {
	id := uuid.New()
	startedAt := utils.UTCNow()
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

	if err := tf.DB.DB.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create test enrichment job: %w", err)
	}
	return job, nil
}
