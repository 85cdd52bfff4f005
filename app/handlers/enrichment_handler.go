package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/dto"
	businessflow "github.com/amirphl/sneaker-price-ledger/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// EnrichmentHandlerInterface defines the contract for enrichment handlers
type EnrichmentHandlerInterface interface {
	StartJob(c fiber.Ctx) error
	GetJob(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
}

// EnrichmentDefaults fill fields a start request omits
type EnrichmentDefaults struct {
	RateLimitPerMinute int
	BatchLimit         int
	RunTimeout         time.Duration
}

// EnrichmentHandler starts enrichment jobs and reports their progress
type EnrichmentHandler struct {
	flow      businessflow.EnrichmentFlow
	defaults  EnrichmentDefaults
	baseCtx   context.Context
	logger    *log.Logger
	validator *validator.Validate
	running   sync.WaitGroup
}

// NewEnrichmentHandler creates a new enrichment handler; jobs it starts are cancelled with baseCtx
func NewEnrichmentHandler(baseCtx context.Context, flow businessflow.EnrichmentFlow, defaults EnrichmentDefaults, logger *log.Logger) *EnrichmentHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &EnrichmentHandler{
		flow:      flow,
		defaults:  defaults,
		baseCtx:   baseCtx,
		logger:    logger,
		validator: validator.New(),
	}
}

// StartJob
// @Summary Start enrichment job
// @Tags Enrichment
// @Accept json
// @Produce json
// @Param request body dto.StartEnrichmentJobRequest false "Run options"
// @Success 202 {object} dto.APIResponse{data=dto.EnrichmentJobResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/enrichment/jobs [post]
func (h *EnrichmentHandler) StartJob(c fiber.Ctx) error {
	var req dto.StartEnrichmentJobRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	runReq := businessflow.EnrichmentRunRequest{
		RateLimitPerMinute: h.defaults.RateLimitPerMinute,
		BatchLimit:         h.defaults.BatchLimit,
		IncludeErrored:     req.IncludeErrored,
	}
	if req.RateLimitPerMinute != nil {
		runReq.RateLimitPerMinute = *req.RateLimitPerMinute
	}
	if req.BatchLimit != nil {
		runReq.BatchLimit = *req.BatchLimit
	}

	ctx, cancel := requestContext(c, 30*time.Second)
	defer cancel()

	run, err := h.flow.Start(ctx, runReq)
	if err != nil {
		if businessflow.IsInvalidRateLimit(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid rate limit", "INVALID_RATE_LIMIT", err.Error())
		}
		if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "INVALID_BATCH_LIMIT" {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid batch limit", be.Code, be.Error())
		}
		h.logger.Printf("enrichment start failed: error=%v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to start enrichment job", "ENRICHMENT_START_FAILED", nil)
	}

	h.running.Add(1)
	go h.execute(run)

	return successResponse(c, fiber.StatusAccepted, "Enrichment job started", toEnrichmentJobResponse(&businessflow.JobSummary{
		JobID:         run.Job.ID,
		UUID:          run.Job.UUID,
		Status:        run.Job.Status,
		TotalProducts: run.Job.TotalProducts,
		StartedAt:     run.Job.StartedAt,
	}))
}

func (h *EnrichmentHandler) execute(run *businessflow.EnrichmentRun) {
	defer h.running.Done()

	ctx := h.baseCtx
	if h.defaults.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.defaults.RunTimeout)
		defer cancel()
	}
	if _, err := h.flow.Execute(ctx, run); err != nil {
		h.logger.Printf("enrichment job failed: job_uuid=%s error=%v", run.Job.UUID, err)
	}
}

// Wait blocks until every job started through this handler has finished
func (h *EnrichmentHandler) Wait() {
	h.running.Wait()
}

// GetJob
// @Summary Get enrichment job
// @Tags Enrichment
// @Produce json
// @Param uuid path string true "Job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.EnrichmentJobResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/enrichment/jobs/{uuid} [get]
func (h *EnrichmentHandler) GetJob(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid job id", "INVALID_JOB_UUID", err.Error())
	}

	ctx, cancel := requestContext(c, 10*time.Second)
	defer cancel()

	summary, err := h.flow.JobByUUID(ctx, id)
	if err != nil {
		if businessflow.IsEnrichmentJobNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Enrichment job not found", "ENRICHMENT_JOB_NOT_FOUND", nil)
		}
		h.logger.Printf("enrichment job lookup failed: job_uuid=%s error=%v", id, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to load enrichment job", "ENRICHMENT_JOB_LOOKUP_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Enrichment job retrieved", toEnrichmentJobResponse(summary))
}

// Stats
// @Summary Enrichment statistics
// @Tags Enrichment
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.EnrichmentStatsResponse}
// @Router /api/v1/enrichment/stats [get]
func (h *EnrichmentHandler) Stats(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, 10*time.Second)
	defer cancel()

	stats, err := h.flow.Stats(ctx)
	if err != nil {
		h.logger.Printf("enrichment stats failed: error=%v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to load enrichment statistics", "ENRICHMENT_STATS_FAILED", nil)
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	return successResponse(c, fiber.StatusOK, "Enrichment statistics retrieved", dto.EnrichmentStatsResponse{
		TotalListings:       stats.TotalListings,
		EligibleListings:    stats.EligibleListings,
		ByStatus:            byStatus,
		MatchRatePercentage: stats.MatchRatePercentage,
	})
}

func toEnrichmentJobResponse(s *businessflow.JobSummary) dto.EnrichmentJobResponse {
	errorLog := s.ErrorLog
	if errorLog == nil {
		errorLog = []string{}
	}
	return dto.EnrichmentJobResponse{
		JobUUID:             s.UUID.String(),
		Status:              string(s.Status),
		TotalProducts:       s.TotalProducts,
		TotalProcessed:      s.Processed,
		Matched:             s.Matched,
		NotFound:            s.NotFound,
		Errors:              s.Errors,
		MatchRatePercentage: s.MatchRatePercentage,
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
		FatalError:          s.FatalError,
		ErrorLog:            errorLog,
	}
}
