package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/app/middleware"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
)

// PipelineHandlerInterface defines the contract for pipeline trigger handlers
type PipelineHandlerInterface interface {
	TriggerIngest(c fiber.Ctx) error
	TriggerReindex(c fiber.Ctx) error
	TriggerMatchNotify(c fiber.Ctx) error
	ProcessPendingJobs(c fiber.Ctx) error
}

// PipelineHandler exposes the pipeline stages as operator-facing triggers
type PipelineHandler struct {
	ingestionFlow     businessflow.IngestionFlow
	normalizationFlow businessflow.NormalizationFlow
	indexingFlow      businessflow.IndexingFlow
	matchNotifyFlow   businessflow.MatchNotifyFlow
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(
	ingestionFlow businessflow.IngestionFlow,
	normalizationFlow businessflow.NormalizationFlow,
	indexingFlow businessflow.IndexingFlow,
	matchNotifyFlow businessflow.MatchNotifyFlow,
) *PipelineHandler {
	return &PipelineHandler{
		ingestionFlow:     ingestionFlow,
		normalizationFlow: normalizationFlow,
		indexingFlow:      indexingFlow,
		matchNotifyFlow:   matchNotifyFlow,
	}
}

func (h *PipelineHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PipelineHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// TriggerIngest runs one ingestion batch for the source in the path
func (h *PipelineHandler) TriggerIngest(c fiber.Ctx) error {
	source := c.Params("source")

	result, err := h.ingestionFlow.Ingest(h.createRequestContext(c, 5*time.Minute), source)
	if err != nil {
		middleware.RecordPipelineRun("ingest", "error")
		if businessflow.IsConnectorExhausted(err) {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Tender source is unavailable", "SOURCE_UNAVAILABLE", err.Error())
		}
		switch err {
		case businessflow.ErrSourceRequired:
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Source is required", "SOURCE_REQUIRED", nil)
		default:
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Ingestion failed", "INGESTION_FAILED", err.Error())
		}
	}

	middleware.RecordPipelineRun("ingest", "ok")
	return h.SuccessResponse(c, fiber.StatusOK, "Ingestion completed", result)
}

// ProcessPendingJobs drains queued normalization jobs
func (h *PipelineHandler) ProcessPendingJobs(c fiber.Ctx) error {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	stats, err := h.normalizationFlow.ProcessPending(h.createRequestContext(c, 5*time.Minute), limit)
	if err != nil {
		middleware.RecordPipelineRun("normalize", "error")
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Normalization drain failed", "NORMALIZATION_FAILED", err.Error())
	}

	middleware.RecordPipelineRun("normalize", "ok")
	return h.SuccessResponse(c, fiber.StatusOK, "Pending jobs processed", stats)
}

// TriggerReindex rebuilds the search projection, optionally for one source
func (h *PipelineHandler) TriggerReindex(c fiber.Ctx) error {
	var source *string
	if s := c.Query("source"); s != "" {
		source = &s
	}

	stats, err := h.indexingFlow.Reindex(h.createRequestContext(c, 10*time.Minute), source)
	if err != nil {
		middleware.RecordPipelineRun("reindex", "error")
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reindex failed", "REINDEX_FAILED", err.Error())
	}

	middleware.RecordPipelineRun("reindex", "ok")
	return h.SuccessResponse(c, fiber.StatusOK, "Reindex completed", stats)
}

// TriggerMatchNotify scores one revision against every active subscription
// and attempts delivery for the matches.
func (h *PipelineHandler) TriggerMatchNotify(c fiber.Ctx) error {
	revisionID, err := strconv.ParseUint(c.Params("revision_id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid revision id", "INVALID_REVISION_ID", nil)
	}

	stats, err := h.matchNotifyFlow.RunForRevision(h.createRequestContext(c, 5*time.Minute), uint(revisionID))
	if err != nil {
		middleware.RecordPipelineRun("match_notify", "error")
		if businessflow.IsRevisionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Revision not found", "REVISION_NOT_FOUND", nil)
		}
		if businessflow.IsRevisionNotNormalized(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Revision has not been normalized", "REVISION_NOT_NORMALIZED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Match and notify failed", "MATCH_NOTIFY_FAILED", err.Error())
	}

	middleware.RecordPipelineRun("match_notify", "ok")
	return h.SuccessResponse(c, fiber.StatusOK, "Match and notify completed", stats)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *PipelineHandler) createRequestContext(c fiber.Ctx, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	_ = cancel // Released when the timeout fires; pipeline runs are bounded anyway.

	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", c.Path())

	return ctx
}
