package dto

// ListOpportunitiesRequest filters profit opportunities
type ListOpportunitiesRequest struct {
	MinProfitCents      int64   `json:"min_profit_cents" validate:"gte=0"`
	MinProfitPercentage float64 `json:"min_profit_percentage" validate:"gte=0"`
	Limit               int     `json:"limit" validate:"gte=1,lte=500"`
}

// PricePointResponse is one side of an opportunity
type PricePointResponse struct {
	PriceSourceID   uint    `json:"price_source_id"`
	SourceType      string  `json:"source_type"`
	SourceProductID string  `json:"source_product_id"`
	PriceCents      int64   `json:"price_cents"`
	Currency        string  `json:"currency"`
	URL             *string `json:"url,omitempty"`
}

// OpportunityResponse pairs a retail price with a higher resale price
type OpportunityResponse struct {
	ProductID        uint               `json:"product_id"`
	Size             *SizeResponse      `json:"size,omitempty"`
	Retail           PricePointResponse `json:"retail"`
	Resale           PricePointResponse `json:"resale"`
	ProfitCents      int64              `json:"profit_cents"`
	ProfitPercentage float64            `json:"profit_percentage"`
	OpportunityScore float64            `json:"opportunity_score"`
}

// SizeResponse is a canonical size
type SizeResponse struct {
	ID     uint    `json:"id"`
	USSize float64 `json:"us_size"`
	Gender string  `json:"gender"`
}

type ListOpportunitiesResponse struct {
	Items []OpportunityResponse `json:"items"`
	Count int                   `json:"count"`
}
