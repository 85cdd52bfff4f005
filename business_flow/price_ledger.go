package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/repository"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// PriceSourceInput is one observed price for a product from one source
type PriceSourceInput struct {
	ProductID       uint              `validate:"required"`
	SizeID          *uint             `validate:"omitempty,gt=0"`
	SourceType      models.SourceType `validate:"required,oneof=stockx awin ebay goat klekt restocks"`
	SourceProductID string            `validate:"required,max=100"`
	SourceName      *string           `validate:"omitempty,max=200"`
	PriceType       models.PriceType  `validate:"required,oneof=retail resale auction wholesale"`
	PriceCents      int64             `validate:"gte=0"`
	Currency        string            `validate:"required,currency_code"`
	InStock         bool
	StockQuantity   *int    `validate:"omitempty,gte=0"`
	SourceURL       *string `validate:"omitempty,url"`
	AffiliateLink   *string `validate:"omitempty,url"`
	Metadata        models.PriceSourceMetadata
}

func (in *PriceSourceInput) key() models.PriceSourceKey {
	return models.PriceSourceKey{
		ProductID:       in.ProductID,
		SourceType:      in.SourceType,
		SourceProductID: in.SourceProductID,
		SizeID:          in.SizeID,
	}
}

// PriceUpsertResult describes what an upsert changed
type PriceUpsertResult struct {
	Source          *models.PriceSource
	Created         bool
	HistoryRecorded bool
}

// PriceLedger is the unified multi-source price store
type PriceLedger interface {
	Upsert(ctx context.Context, input PriceSourceInput) (*PriceUpsertResult, error)
}

// PriceLedgerImpl implements PriceLedger
type PriceLedgerImpl struct {
	sourceRepo  repository.PriceSourceRepository
	historyRepo repository.PriceHistoryRepository
	tx          repository.Transactor
	clock       utils.Clock
	validator   *validator.Validate
}

// NewPriceLedger creates a new price ledger
func NewPriceLedger(
	sourceRepo repository.PriceSourceRepository,
	historyRepo repository.PriceHistoryRepository,
	tx repository.Transactor,
	clock utils.Clock,
) PriceLedger {
	return &PriceLedgerImpl{
		sourceRepo:  sourceRepo,
		historyRepo: historyRepo,
		tx:          tx,
		clock:       utils.ClockOrSystem(clock),
		validator:   newValidator(),
	}
}

// Upsert inserts or updates the ledger row keyed by product, source, source product and size.
// A history entry is appended on insert and whenever price or stock state changes.
func (l *PriceLedgerImpl) Upsert(ctx context.Context, input PriceSourceInput) (*PriceUpsertResult, error) {
	if input.Metadata.Source == "" {
		input.Metadata.Source = input.SourceType
	}
	if err := l.validateInput(input); err != nil {
		return nil, NewBusinessError("INVALID_PRICE_SOURCE", "Price source validation failed", err)
	}

	result := &PriceUpsertResult{}
	err := l.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		now := l.clock.Now()

		existing, err := l.sourceRepo.ByKey(txCtx, input.key(), true)
		if err != nil {
			return err
		}

		if existing == nil {
			record := newPriceSource(input, now)
			inserted, err := l.sourceRepo.InsertIfAbsent(txCtx, record)
			if err != nil {
				return err
			}
			if inserted {
				result.Source, result.Created, result.HistoryRecorded = record, true, true
				return l.appendHistory(txCtx, record, now)
			}

			// A concurrent writer created the row first; continue as an update
			existing, err = l.sourceRepo.ByKey(txCtx, input.key(), true)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("price source for product %d vanished after conflicting insert", input.ProductID)
			}
		}

		changed := existing.PriceCents != input.PriceCents || existing.InStock != input.InStock
		applyPriceSource(existing, input, now)
		if err := l.sourceRepo.Update(txCtx, existing); err != nil {
			return err
		}

		result.Source, result.HistoryRecorded = existing, changed
		if !changed {
			return nil
		}
		return l.appendHistory(txCtx, existing, now)
	})
	if err != nil {
		return nil, NewBusinessError("PRICE_LEDGER_WRITE_FAILED", "Failed to write price ledger",
			fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	change := "unchanged"
	switch {
	case result.Created:
		change = "created"
	case result.HistoryRecorded:
		change = "changed"
	}
	priceLedgerWritesTotal.WithLabelValues(string(input.PriceType), change).Inc()

	return result, nil
}

func (l *PriceLedgerImpl) validateInput(input PriceSourceInput) error {
	if err := l.validator.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPriceSource, describeValidation(err))
	}
	if input.Metadata.Source != input.SourceType {
		return fmt.Errorf("%w: metadata source %s does not match source type %s",
			ErrInvalidPriceSource, input.Metadata.Source, input.SourceType)
	}
	return nil
}

func (l *PriceLedgerImpl) appendHistory(ctx context.Context, source *models.PriceSource, at time.Time) error {
	entry := &models.PriceHistory{
		PriceSourceID: source.ID,
		PriceCents:    source.PriceCents,
		InStock:       source.InStock,
		StockQuantity: source.StockQuantity,
		RecordedAt:    at,
	}
	if err := l.historyRepo.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

func newPriceSource(input PriceSourceInput, now time.Time) *models.PriceSource {
	source := &models.PriceSource{
		ProductID:       input.ProductID,
		SizeID:          input.SizeID,
		SourceType:      input.SourceType,
		SourceProductID: input.SourceProductID,
		PriceType:       input.PriceType,
	}
	applyPriceSource(source, input, now)
	return source
}

// applyPriceSource copies the mutable fields of input onto source
func applyPriceSource(source *models.PriceSource, input PriceSourceInput, now time.Time) {
	source.SourceName = input.SourceName
	source.PriceType = input.PriceType
	source.PriceCents = input.PriceCents
	source.Currency = input.Currency
	source.InStock = input.InStock
	source.StockQuantity = input.StockQuantity
	source.SourceURL = input.SourceURL
	source.AffiliateLink = input.AffiliateLink
	source.Metadata = datatypes.NewJSONType(input.Metadata)
	source.LastUpdated = now
}
