package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/dto"
	businessflow "github.com/amirphl/sneaker-price-ledger/business_flow"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultOpportunityLimit = 50

// OpportunityHandlerInterface defines the contract for opportunity handlers
type OpportunityHandlerInterface interface {
	List(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

// OpportunityHandler serves retail-to-resale profit opportunities
type OpportunityHandler struct {
	flow      businessflow.OpportunityFlow
	logger    *log.Logger
	validator *validator.Validate
}

// NewOpportunityHandler creates a new opportunity handler
func NewOpportunityHandler(flow businessflow.OpportunityFlow, logger *log.Logger) *OpportunityHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &OpportunityHandler{
		flow:      flow,
		logger:    logger,
		validator: validator.New(),
	}
}

// List
// @Summary List profit opportunities
// @Tags Opportunities
// @Produce json
// @Param min_profit_cents query int false "Minimum profit in cents"
// @Param min_profit_percentage query number false "Minimum profit percentage"
// @Param limit query int false "Maximum results (1-500, default 50)"
// @Success 200 {object} dto.APIResponse{data=dto.ListOpportunitiesResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/opportunities [get]
func (h *OpportunityHandler) List(c fiber.Ctx) error {
	req, err := h.parseQuery(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := requestContext(c, 30*time.Second)
	defer cancel()

	opportunities, err := h.flow.FindOpportunities(ctx, toOpportunityQuery(req))
	if err != nil {
		if businessflow.IsInvalidOpportunityQuery(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid opportunity query", "INVALID_OPPORTUNITY_QUERY", err.Error())
		}
		h.logger.Printf("find opportunities failed: error=%v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to find opportunities", "OPPORTUNITIES_FAILED", nil)
	}

	items := make([]dto.OpportunityResponse, 0, len(opportunities))
	for _, o := range opportunities {
		items = append(items, toOpportunityResponse(o))
	}
	return successResponse(c, fiber.StatusOK, "Opportunities retrieved", dto.ListOpportunitiesResponse{
		Items: items,
		Count: len(items),
	})
}

// Export
// @Summary Export profit opportunities (Excel)
// @Tags Opportunities
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param min_profit_cents query int false "Minimum profit in cents"
// @Param min_profit_percentage query number false "Minimum profit percentage"
// @Param limit query int false "Maximum results (1-500, default 50)"
// @Success 200 {string} string "Excel file"
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/opportunities/export [get]
func (h *OpportunityHandler) Export(c fiber.Ctx) error {
	req, err := h.parseQuery(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := requestContext(c, 60*time.Second)
	defer cancel()

	filename, data, err := h.flow.ExportOpportunities(ctx, toOpportunityQuery(req))
	if err != nil {
		if businessflow.IsInvalidOpportunityQuery(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid opportunity query", "INVALID_OPPORTUNITY_QUERY", err.Error())
		}
		h.logger.Printf("export opportunities failed: error=%v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to generate Excel", "DOWNLOAD_FAILED", nil)
	}
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

func (h *OpportunityHandler) parseQuery(c fiber.Ctx) (dto.ListOpportunitiesRequest, error) {
	req := dto.ListOpportunitiesRequest{Limit: defaultOpportunityLimit}
	if v := c.Query("min_profit_cents"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, err
		}
		req.MinProfitCents = parsed
	}
	if v := c.Query("min_profit_percentage"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, err
		}
		req.MinProfitPercentage = parsed
	}
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return req, err
		}
		req.Limit = parsed
	}
	return req, nil
}

func toOpportunityQuery(req dto.ListOpportunitiesRequest) businessflow.OpportunityQuery {
	return businessflow.OpportunityQuery{
		MinProfitCents:      req.MinProfitCents,
		MinProfitPercentage: req.MinProfitPercentage,
		Limit:               req.Limit,
	}
}

func toOpportunityResponse(o businessflow.ProfitOpportunity) dto.OpportunityResponse {
	resp := dto.OpportunityResponse{
		ProductID:        o.Retail.ProductID,
		Retail:           toPricePoint(o.Retail, o.Retail.AffiliateLink),
		Resale:           toPricePoint(o.Resale, o.Resale.SourceURL),
		ProfitCents:      o.ProfitCents,
		ProfitPercentage: o.ProfitPercentage,
		OpportunityScore: o.OpportunityScore,
	}
	if o.Retail.Size != nil {
		resp.Size = &dto.SizeResponse{
			ID:     o.Retail.Size.ID,
			USSize: o.Retail.Size.USSize,
			Gender: o.Retail.Size.Gender,
		}
	}
	return resp
}

func toPricePoint(s *models.PriceSource, url *string) dto.PricePointResponse {
	return dto.PricePointResponse{
		PriceSourceID:   s.ID,
		SourceType:      string(s.SourceType),
		SourceProductID: s.SourceProductID,
		PriceCents:      s.PriceCents,
		Currency:        s.Currency,
		URL:             url,
	}
}
