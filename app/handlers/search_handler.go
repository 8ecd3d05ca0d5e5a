package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/tenderwatch/tenderwatch/app/dto"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
)

// SearchHandlerInterface defines the contract for tender search handlers
type SearchHandlerInterface interface {
	Search(c fiber.Ctx) error
	ExportSearch(c fiber.Ctx) error
}

// SearchHandler serves keyword/facet search over the index documents
type SearchHandler struct {
	indexingFlow businessflow.IndexingFlow
	validator    *validator.Validate
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(indexingFlow businessflow.IndexingFlow) *SearchHandler {
	return &SearchHandler{
		indexingFlow: indexingFlow,
		validator:    validator.New(),
	}
}

func (h *SearchHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SearchHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Search returns tenders matching the keyword and facet filters, ordered by
// deadline ascending.
func (h *SearchHandler) Search(c fiber.Ctx) error {
	req, err := h.bindRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid search parameters", "INVALID_SEARCH_PARAMS", err.Error())
	}

	if err := h.validateRequest(c, req); err != nil {
		return err
	}

	response, err := h.indexingFlow.Search(h.createRequestContext(c), req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Search failed", "SEARCH_FAILED", err.Error())
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Search completed", response)
}

// ExportSearch renders the same search hits as an XLSX download
func (h *SearchHandler) ExportSearch(c fiber.Ctx) error {
	req, err := h.bindRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid search parameters", "INVALID_SEARCH_PARAMS", err.Error())
	}

	if err := h.validateRequest(c, req); err != nil {
		return err
	}

	workbook, err := h.indexingFlow.ExportSearch(h.createRequestContext(c), req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Export failed", "EXPORT_FAILED", err.Error())
	}

	filename := fmt.Sprintf("tenders-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(workbook)
}

func (h *SearchHandler) bindRequest(c fiber.Ctx) (*dto.SearchRequest, error) {
	req := &dto.SearchRequest{
		Keyword:     c.Query("keyword"),
		Region:      c.Query("region"),
		Category:    c.Query("category"),
		DeadlineLTE: c.Query("deadline_lte"),
		Source:      c.Query("source"),
	}
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("limit must be an integer")
		}
		req.Limit = parsed
	}
	return req, nil
}

func (h *SearchHandler) validateRequest(c fiber.Ctx, req *dto.SearchRequest) error {
	if err := h.validator.Struct(req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}
	return nil
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *SearchHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_ = cancel

	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", c.Path())

	return ctx
}
