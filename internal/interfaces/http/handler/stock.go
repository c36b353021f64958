package handler

import (
	"context"
	"time"

	inventoryapp "github.com/erp/warehouse/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockService is the part of the allocation service the stock endpoints use
type StockService interface {
	ReceiveStock(ctx context.Context, cmd inventoryapp.ReceiveStockCommand) (*inventoryapp.StockLotResponse, error)
	ListLots(ctx context.Context, productID uuid.UUID) (*inventoryapp.ProductLotsResponse, error)
	RemoveLot(ctx context.Context, productID, lotID uuid.UUID) error
}

// StockHandler handles stock lot endpoints
type StockHandler struct {
	BaseHandler
	service StockService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(service StockService) *StockHandler {
	return &StockHandler{service: service}
}

// ReceiveStockRequest is the body of POST /stock/lots
type ReceiveStockRequest struct {
	ProductID  string          `json:"product_id" binding:"required,uuid"`
	LocationID string          `json:"location_id" binding:"required,uuid"`
	Quantity   int64           `json:"quantity"`
	ExpiryDate string          `json:"expiry_date"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// ReceiveStock books stock into the lot at the request's product and location
func (h *StockHandler) ReceiveStock(c *gin.Context) {
	var req ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	cmd := inventoryapp.ReceiveStockCommand{
		ProductID:  uuid.MustParse(req.ProductID),
		LocationID: uuid.MustParse(req.LocationID),
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
	}
	if req.ExpiryDate != "" {
		expiry, err := parseDate(req.ExpiryDate)
		if err != nil {
			h.BadRequest(c, "Invalid expiry_date: use YYYY-MM-DD or RFC3339")
			return
		}
		cmd.ExpiryDate = &expiry
	}

	resp, err := h.service.ReceiveStock(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListLots returns the product's lots in consumption order
func (h *StockHandler) ListLots(c *gin.Context) {
	productID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.ListLots(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RemoveLot deletes an empty lot of the product
func (h *StockHandler) RemoveLot(c *gin.Context) {
	productID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	lotID, ok := h.uuidParam(c, "lot_id")
	if !ok {
		return
	}

	if err := h.service.RemoveLot(c.Request.Context(), productID, lotID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"lot_id": lotID, "removed": true})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
