package businessflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/repository"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const opportunitySheetName = "Opportunities"

// OpportunityQuery filters profit opportunities; Limit <= 0 returns every match
type OpportunityQuery struct {
	MinProfitCents      int64   `validate:"gte=0"`
	MinProfitPercentage float64 `validate:"gte=0"`
	Limit               int
}

// ProfitOpportunity pairs an in-stock retail price with a higher resale price of the same product and size
type ProfitOpportunity struct {
	Retail           *models.PriceSource
	Resale           *models.PriceSource
	ProfitCents      int64
	ProfitPercentage float64
	OpportunityScore float64
}

// OpportunityFlow ranks retail-to-resale arbitrage from the price ledger
type OpportunityFlow interface {
	FindOpportunities(ctx context.Context, query OpportunityQuery) ([]ProfitOpportunity, error)
	ExportOpportunities(ctx context.Context, query OpportunityQuery) (string, []byte, error)
}

// OpportunityFlowImpl implements OpportunityFlow
type OpportunityFlowImpl struct {
	sourceRepo repository.PriceSourceRepository
	clock      utils.Clock
	validator  *validator.Validate
}

// NewOpportunityFlow creates a new opportunity flow
func NewOpportunityFlow(sourceRepo repository.PriceSourceRepository, clock utils.Clock) OpportunityFlow {
	return &OpportunityFlowImpl{
		sourceRepo: sourceRepo,
		clock:      utils.ClockOrSystem(clock),
		validator:  newValidator(),
	}
}

// FindOpportunities joins in-stock retail rows to in-stock resale rows of the same product and size,
// keeps pairs where resale exceeds retail and sorts them by profit descending
func (f *OpportunityFlowImpl) FindOpportunities(ctx context.Context, query OpportunityQuery) ([]ProfitOpportunity, error) {
	if err := f.validator.Struct(query); err != nil {
		return nil, NewBusinessError("INVALID_OPPORTUNITY_QUERY", "Opportunity query validation failed",
			fmt.Errorf("%w: %s", ErrInvalidOpportunityQuery, describeValidation(err)))
	}

	retail, err := f.listPrices(ctx, models.PriceTypeRetail)
	if err != nil {
		return nil, NewBusinessError("FETCH_RETAIL_PRICES_FAILED", "Failed to fetch retail prices", err)
	}
	resale, err := f.listPrices(ctx, models.PriceTypeResale)
	if err != nil {
		return nil, NewBusinessError("FETCH_RESALE_PRICES_FAILED", "Failed to fetch resale prices", err)
	}

	resaleByProduct := make(map[uint][]*models.PriceSource)
	for _, s := range resale {
		resaleByProduct[s.ProductID] = append(resaleByProduct[s.ProductID], s)
	}

	opportunities := make([]ProfitOpportunity, 0)
	for _, r := range retail {
		if r.PriceCents <= 0 {
			continue
		}
		for _, s := range resaleByProduct[r.ProductID] {
			if !sameCanonicalSize(r, s) || s.PriceCents <= r.PriceCents {
				continue
			}
			o := newProfitOpportunity(r, s)
			if o.ProfitCents < query.MinProfitCents || o.ProfitPercentage < query.MinProfitPercentage {
				continue
			}
			opportunities = append(opportunities, o)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if a.ProfitCents != b.ProfitCents {
			return a.ProfitCents > b.ProfitCents
		}
		if a.OpportunityScore != b.OpportunityScore {
			return a.OpportunityScore > b.OpportunityScore
		}
		if a.Retail.ID != b.Retail.ID {
			return a.Retail.ID < b.Retail.ID
		}
		return a.Resale.ID < b.Resale.ID
	})

	if query.Limit > 0 && len(opportunities) > query.Limit {
		opportunities = opportunities[:query.Limit]
	}
	return opportunities, nil
}

// ExportOpportunities renders FindOpportunities as an xlsx workbook and returns its file name and content
func (f *OpportunityFlowImpl) ExportOpportunities(ctx context.Context, query OpportunityQuery) (string, []byte, error) {
	opportunities, err := f.FindOpportunities(ctx, query)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), opportunitySheetName); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}

	header := []any{
		"product_id", "size", "retail_source", "retail_source_product_id", "retail_price", "resale_source",
		"resale_source_product_id", "resale_price", "currency", "profit", "profit_percentage", "opportunity_score",
		"affiliate_link", "resale_url",
	}
	if err := xl.SetSheetRow(opportunitySheetName, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}
	if style, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = xl.SetRowStyle(opportunitySheetName, 1, 1, style)
	}

	for i, o := range opportunities {
		row := []any{
			o.Retail.ProductID,
			sizeLabel(o.Retail.Size),
			string(o.Retail.SourceType),
			o.Retail.SourceProductID,
			centsToAmount(o.Retail.PriceCents),
			string(o.Resale.SourceType),
			o.Resale.SourceProductID,
			centsToAmount(o.Resale.PriceCents),
			o.Retail.Currency,
			centsToAmount(o.ProfitCents),
			o.ProfitPercentage,
			o.OpportunityScore,
			utils.DerefString(o.Retail.AffiliateLink),
			utils.DerefString(o.Resale.SourceURL),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(opportunitySheetName, cell, &row); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}
	_ = xl.SetColWidth(opportunitySheetName, "A", "N", 18)

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("opportunities_%s.xlsx", f.clock.Now().UTC().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func (f *OpportunityFlowImpl) listPrices(ctx context.Context, priceType models.PriceType) ([]*models.PriceSource, error) {
	return f.sourceRepo.ListWithSizes(ctx, models.PriceSourceFilter{
		PriceTypes: []models.PriceType{priceType},
		InStock:    utils.ToPtr(true),
		OrderBy:    []models.PriceSourceOrder{{Column: models.PriceSourceColumnProductID}},
	})
}

func newProfitOpportunity(retail, resale *models.PriceSource) ProfitOpportunity {
	profit := resale.PriceCents - retail.PriceCents
	profitD := decimal.NewFromInt(profit)
	rate := profitD.Div(decimal.NewFromInt(retail.PriceCents))

	percentage, _ := rate.Mul(decimal.NewFromInt(100)).Round(1).Float64()
	score, _ := profitD.Div(decimal.NewFromInt(100)).Mul(rate).Round(2).Float64()

	return ProfitOpportunity{
		Retail:           retail,
		Resale:           resale,
		ProfitCents:      profit,
		ProfitPercentage: percentage,
		OpportunityScore: score,
	}
}

// sameCanonicalSize holds when both rows are sizeless or share a size by id or by US size and gender
func sameCanonicalSize(a, b *models.PriceSource) bool {
	if a.SizeID == nil || b.SizeID == nil {
		return a.SizeID == nil && b.SizeID == nil
	}
	if *a.SizeID == *b.SizeID {
		return true
	}
	if a.Size == nil || b.Size == nil {
		return false
	}
	return a.Size.USSize == b.Size.USSize && a.Size.Gender == b.Size.Gender
}

func sizeLabel(size *models.SizeMaster) string {
	if size == nil {
		return ""
	}
	return fmt.Sprintf("US %s %s", decimal.NewFromFloat(size.USSize).String(), size.Gender)
}

func centsToAmount(cents int64) float64 {
	v, _ := decimal.New(cents, -2).Float64()
	return v
}
