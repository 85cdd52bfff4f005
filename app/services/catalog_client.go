package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/shopspring/decimal"
)

// CatalogSearcher is the catalog surface the enrichment flow depends on
type CatalogSearcher interface {
	Search(ctx context.Context, query string, pageNumber, pageSize int) (*CatalogSearchResult, error)
	ProductVariants(ctx context.Context, productID string) ([]CatalogVariant, error)
	VariantMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error)
}

// Amount is a marketplace money value; the API sends amounts as strings, numbers or null
type Amount struct {
	decimal.NullDecimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		a.Valid = false
		return nil
	}
	return a.NullDecimal.UnmarshalJSON(b)
}

// Cents converts the amount to minor units; ok is false when the amount is absent
func (a Amount) Cents() (int64, bool) {
	if !a.Valid {
		return 0, false
	}
	return utils.AmountToCents(a.Decimal), true
}

// CatalogSearchResult is one page of catalog search hits
type CatalogSearchResult struct {
	Count       int              `json:"count"`
	PageNumber  int              `json:"pageNumber"`
	PageSize    int              `json:"pageSize"`
	HasNextPage bool             `json:"hasNextPage"`
	Products    []CatalogProduct `json:"products"`
}

// CatalogProduct is a marketplace product
type CatalogProduct struct {
	ProductID         string            `json:"productId"`
	URLKey            string            `json:"urlKey"`
	StyleID           string            `json:"styleId"`
	ProductType       string            `json:"productType"`
	Title             string            `json:"title"`
	Brand             string            `json:"brand"`
	ProductAttributes ProductAttributes `json:"productAttributes"`
	Market            *ProductMarket    `json:"market,omitempty"`
}

// ProductMarket is the product-level market summary some responses embed
type ProductMarket struct {
	LowestAsk  Amount `json:"lowestAsk"`
	HighestBid Amount `json:"highestBid"`
}

// ProductAttributes holds the known product traits; anything else is kept as strings in Traits
type ProductAttributes struct {
	Gender      string
	Colorway    string
	Color       string
	Season      string
	ReleaseDate string
	RetailPrice Amount
	Traits      map[string]string
}

func (p *ProductAttributes) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	known := map[string]*string{
		"gender":      &p.Gender,
		"colorway":    &p.Colorway,
		"color":       &p.Color,
		"season":      &p.Season,
		"releaseDate": &p.ReleaseDate,
	}
	for key, value := range raw {
		if key == "retailPrice" {
			if err := p.RetailPrice.UnmarshalJSON(value); err != nil {
				return fmt.Errorf("retailPrice: %w", err)
			}
			continue
		}
		text := rawText(value)
		if dst, ok := known[key]; ok {
			*dst = text
			continue
		}
		if text == "" {
			continue
		}
		if p.Traits == nil {
			p.Traits = make(map[string]string)
		}
		p.Traits[key] = text
	}
	return nil
}

// rawText renders a JSON scalar as a plain string; unquoted for strings
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

// CatalogVariant is one size variant of a product
type CatalogVariant struct {
	ProductID    string        `json:"productId"`
	VariantID    string        `json:"variantId"`
	VariantName  string        `json:"variantName"`
	VariantValue string        `json:"variantValue"`
	SizeChart    SizeChart     `json:"sizeChart"`
	GTINs        []VariantGTIN `json:"gtins"`
}

// SizeChart lists a variant's size in each regional system
type SizeChart struct {
	DefaultConversion    *SizeConversion  `json:"defaultConversion"`
	AvailableConversions []SizeConversion `json:"availableConversions"`
}

// Conversions returns the default conversion followed by the available ones
func (s SizeChart) Conversions() []SizeConversion {
	out := make([]SizeConversion, 0, len(s.AvailableConversions)+1)
	if s.DefaultConversion != nil {
		out = append(out, *s.DefaultConversion)
	}
	return append(out, s.AvailableConversions...)
}

// SizeConversion is a size label in one system, e.g. {"size": "US M 9", "type": "us m"}
type SizeConversion struct {
	Size string `json:"size"`
	Type string `json:"type"`
}

// VariantGTIN is a barcode attached to a variant
type VariantGTIN struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

// MarketData is the live market for one variant
type MarketData struct {
	ProductID           string `json:"productId"`
	VariantID           string `json:"variantId"`
	CurrencyCode        string `json:"currencyCode"`
	LowestAskAmount     Amount `json:"lowestAskAmount"`
	HighestBidAmount    Amount `json:"highestBidAmount"`
	SellFasterAmount    Amount `json:"sellFasterAmount"`
	EarnMoreAmount      Amount `json:"earnMoreAmount"`
	FlexLowestAskAmount Amount `json:"flexLowestAskAmount"`
}

// MarketplaceOrder is a historical seller order
type MarketplaceOrder struct {
	OrderNumber  string    `json:"orderNumber"`
	ListingID    string    `json:"listingId"`
	Status       string    `json:"status"`
	Amount       Amount    `json:"amount"`
	CurrencyCode string    `json:"currencyCode"`
	CreatedAt    time.Time `json:"createdAt"`
	Product      struct {
		ProductID   string `json:"productId"`
		ProductName string `json:"productName"`
		StyleID     string `json:"styleId"`
	} `json:"product"`
	Variant struct {
		VariantID    string `json:"variantId"`
		VariantName  string `json:"variantName"`
		VariantValue string `json:"variantValue"`
	} `json:"variant"`
}

// OrderQuery filters historical orders
type OrderQuery struct {
	FromDate    *time.Time
	ToDate      *time.Time
	OrderStatus string
}

// CatalogClient is the typed marketplace catalog API
type CatalogClient struct {
	fetcher *MarketplaceFetcher
	logger  *log.Logger
}

// NewCatalogClient creates a catalog client on top of fetcher
func NewCatalogClient(fetcher *MarketplaceFetcher, logger *log.Logger) *CatalogClient {
	if logger == nil {
		logger = log.Default()
	}
	return &CatalogClient{fetcher: fetcher, logger: logger}
}

// Search finds catalog products by free text, style id or barcode
func (c *CatalogClient) Search(ctx context.Context, query string, pageNumber, pageSize int) (*CatalogSearchResult, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > utils.MarketplaceMaxSearchPageSize {
		pageSize = utils.MarketplaceMaxSearchPageSize
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("pageNumber", strconv.Itoa(pageNumber))
	params.Set("pageSize", strconv.Itoa(pageSize))

	var result CatalogSearchResult
	if err := c.fetcher.GetJSON(ctx, "/catalog/search", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProductDetails returns one product; a missing product is a NotFoundError
func (c *CatalogClient) ProductDetails(ctx context.Context, productID string) (*CatalogProduct, error) {
	var product CatalogProduct
	endpoint := "/catalog/products/" + url.PathEscape(productID)
	if err := c.fetcher.GetJSON(ctx, endpoint, nil, &product); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, &NotFoundError{Resource: "product " + productID}
		}
		return nil, err
	}
	return &product, nil
}

// ProductVariants returns every size variant of a product; an unknown product has none
func (c *CatalogClient) ProductVariants(ctx context.Context, productID string) ([]CatalogVariant, error) {
	var variants []CatalogVariant
	endpoint := "/catalog/products/" + url.PathEscape(productID) + "/variants"
	if err := c.fetcher.GetJSON(ctx, endpoint, nil, &variants); err != nil {
		if statusCode(err) == http.StatusNotFound {
			c.logger.Printf("marketplace product has no variants product_id=%s", productID)
			return []CatalogVariant{}, nil
		}
		return nil, err
	}
	return variants, nil
}

// VariantMarketData returns the live market for a variant in the given currency
func (c *CatalogClient) VariantMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error) {
	params := url.Values{}
	if currency != "" {
		params.Set("currencyCode", currency)
	}

	var data MarketData
	endpoint := "/catalog/products/" + url.PathEscape(productID) + "/variants/" + url.PathEscape(variantID) + "/market-data"
	if err := c.fetcher.GetJSON(ctx, endpoint, params, &data); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, &NotFoundError{Resource: "market data " + productID + "/" + variantID}
		}
		return nil, err
	}
	return &data, nil
}

// HistoricalOrders walks every page of the seller order history
func (c *CatalogClient) HistoricalOrders(ctx context.Context, q OrderQuery) ([]MarketplaceOrder, error) {
	params := url.Values{}
	if q.FromDate != nil {
		params.Set("fromDate", q.FromDate.Format("2006-01-02"))
	}
	if q.ToDate != nil {
		params.Set("toDate", q.ToDate.Format("2006-01-02"))
	}
	if q.OrderStatus != "" {
		params.Set("orderStatus", q.OrderStatus)
	}

	raw, err := c.fetcher.FetchAll(ctx, "/selling/orders/history", params, "orders")
	if err != nil {
		return nil, err
	}

	orders := make([]MarketplaceOrder, 0, len(raw))
	for _, item := range raw {
		var order MarketplaceOrder
		if err := json.Unmarshal(item, &order); err != nil {
			return nil, &NetworkError{Endpoint: "/selling/orders/history", Err: fmt.Errorf("decode order: %w", err)}
		}
		orders = append(orders, order)
	}
	return orders, nil
}
