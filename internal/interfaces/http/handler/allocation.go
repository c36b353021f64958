package handler

import (
	"context"
	"strconv"

	inventoryapp "github.com/erp/warehouse/internal/application/inventory"
	"github.com/erp/warehouse/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AllocationService is the part of the allocation service the order
// endpoints use
type AllocationService interface {
	PlaceOrder(ctx context.Context, cmd inventoryapp.PlaceOrderCommand) (*inventoryapp.OrderAllocationResponse, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*inventoryapp.OrderAllocationResponse, error)
	ReleaseLine(ctx context.Context, orderID uuid.UUID, index int) (*inventoryapp.OrderAllocationResponse, error)
	GetOrderAllocation(ctx context.Context, orderID uuid.UUID) (*inventoryapp.OrderAllocationResponse, error)
}

// AllocationHandler handles order allocation endpoints
type AllocationHandler struct {
	BaseHandler
	service AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(service AllocationService) *AllocationHandler {
	return &AllocationHandler{service: service}
}

// OrderLineRequest is one product line of an order
type OrderLineRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int64  `json:"quantity"`
}

// PlaceOrderRequest is the body of POST /orders/:id/allocation
type PlaceOrderRequest struct {
	Items []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
}

// PlaceOrder allocates stock for every line of the order or for none.
// Quantities are checked by the domain so a zero or negative quantity is
// reported as INVALID_QUANTITY.
func (h *AllocationHandler) PlaceOrder(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	cmd := inventoryapp.PlaceOrderCommand{
		OrderID: orderID,
		Items:   make([]inventoryapp.OrderLine, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, inventoryapp.OrderLine{
			ProductID: uuid.MustParse(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	ctx := logger.WithOrderID(c.Request.Context(), orderID.String())
	resp, err := h.service.PlaceOrder(ctx, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// CancelOrder returns the order's stock to its lots
func (h *AllocationHandler) CancelOrder(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	ctx := logger.WithOrderID(c.Request.Context(), orderID.String())
	resp, err := h.service.CancelOrder(ctx, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ReleaseLine returns the stock of one order line. The line is addressed by
// its position in the placed order.
func (h *AllocationHandler) ReleaseLine(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.BadRequest(c, "Invalid index: must be a non-negative integer")
		return
	}

	ctx := logger.WithOrderID(c.Request.Context(), orderID.String())
	resp, err := h.service.ReleaseLine(ctx, orderID, index)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetOrderAllocation returns the order's allocation state
func (h *AllocationHandler) GetOrderAllocation(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetOrderAllocation(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
