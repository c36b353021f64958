package handler

import (
	"errors"
	"net/http"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/erp/warehouse/internal/infrastructure/logger"
	"github.com/erp/warehouse/internal/interfaces/http/dto"
	"github.com/erp/warehouse/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response for input the handler could not accept
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, message)
}

// HandleError converts an error from the service layer into a response.
// Domain rejections keep their code and full message; anything that maps to
// a 5xx is logged and answered with the code's generic message only.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.GetGinLogger(c).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeInternal,
			"An unexpected error occurred",
			requestID,
		))
		return
	}

	status := dto.GetHTTPStatus(domainErr.Code)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("request failed",
			zap.String("error_code", domainErr.Code),
			zap.Error(err),
		)
		message = domainErr.Message
	}

	resp := dto.NewErrorResponseWithRequestID(domainErr.Code, message, requestID).WithDetails(errorDetails(err))
	c.JSON(status, resp)
}

// errorDetails exposes the numbers behind a stock rejection
func errorDetails(err error) map[string]any {
	var lineErr *inventory.OrderAllocationError
	if errors.As(err, &lineErr) {
		details := map[string]any{
			"item_index": lineErr.ItemIndex,
			"product_id": lineErr.ProductID.String(),
			"requested":  lineErr.Requested,
		}
		if lineErr.Shortfall > 0 {
			details["shortfall"] = lineErr.Shortfall
		}
		return details
	}
	if ise, ok := inventory.AsInsufficientStock(err); ok {
		return map[string]any{
			"product_id": ise.ProductID.String(),
			"requested":  ise.Requested,
			"available":  ise.Available,
			"shortfall":  ise.Shortfall(),
		}
	}
	return nil
}

// uuidParam parses a UUID path parameter, answering 400 when it is malformed
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
