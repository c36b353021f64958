package inventory

import (
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is one product line of an order
type OrderLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int64     `json:"quantity"`
}

// PlaceOrderCommand allocates stock for every line of an order.
// Quantities are checked by the domain so that a bad line is reported with
// its index.
type PlaceOrderCommand struct {
	OrderID uuid.UUID   `json:"order_id" validate:"required"`
	Items   []OrderLine `json:"items" validate:"required,min=1,dive"`
}

func (c PlaceOrderCommand) requests() []inventory.AllocationRequest {
	reqs := make([]inventory.AllocationRequest, len(c.Items))
	for i, item := range c.Items {
		reqs[i] = inventory.AllocationRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return reqs
}

func (c PlaceOrderCommand) productIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// ReceiveStockCommand books stock into the lot at (product, location)
type ReceiveStockCommand struct {
	ProductID  uuid.UUID       `json:"product_id" validate:"required"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	Quantity   int64           `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// LotAllocationResponse is the quantity taken from one lot
type LotAllocationResponse struct {
	LotID      uuid.UUID       `json:"lot_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// AllocationLineResponse is the allocation of one order line
type AllocationLineResponse struct {
	ProductID uuid.UUID               `json:"product_id"`
	Quantity  int64                   `json:"quantity"`
	Cost      decimal.Decimal         `json:"cost"`
	Lots      []LotAllocationResponse `json:"lots"`
	Released  bool                    `json:"released"`
}

// OrderAllocationResponse is the stock state of an order
type OrderAllocationResponse struct {
	OrderID       uuid.UUID                `json:"order_id"`
	Status        string                   `json:"status"`
	TotalQuantity int64                    `json:"total_quantity"`
	HeldQuantity  int64                    `json:"held_quantity"`
	Lines         []AllocationLineResponse `json:"lines"`
	AllocatedAt   *time.Time               `json:"allocated_at,omitempty"`
	ReleasedAt    *time.Time               `json:"released_at,omitempty"`
}

// StockLotResponse is one lot as seen by API clients
type StockLotResponse struct {
	ID         uuid.UUID       `json:"id"`
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   int64           `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Sequence   int64           `json:"sequence"`
}

// ProductLotsResponse lists a product's lots in consumption order
type ProductLotsResponse struct {
	ProductID uuid.UUID          `json:"product_id"`
	Available int64              `json:"available"`
	Lots      []StockLotResponse `json:"lots"`
}

// ToOrderAllocationResponse converts the domain record to a response
func ToOrderAllocationResponse(oa *inventory.OrderAllocation) *OrderAllocationResponse {
	resp := &OrderAllocationResponse{
		OrderID:       oa.OrderID,
		Status:        string(oa.Status),
		TotalQuantity: oa.TotalQuantity(),
		HeldQuantity:  oa.HeldQuantity(),
		Lines:         make([]AllocationLineResponse, 0, len(oa.Results)),
		AllocatedAt:   oa.AllocatedAt,
		ReleasedAt:    oa.ReleasedAt,
	}
	for i := range oa.Results {
		r := &oa.Results[i]
		line := AllocationLineResponse{
			ProductID: r.ProductID,
			Quantity:  r.TotalQuantity(),
			Cost:      r.TotalCost(),
			Lots:      make([]LotAllocationResponse, 0, len(r.Lots)),
			Released:  r.Released,
		}
		for _, la := range r.Lots {
			line.Lots = append(line.Lots, LotAllocationResponse{
				LotID:      la.LotID,
				LocationID: la.LocationID,
				Quantity:   la.Quantity,
				UnitCost:   la.UnitCost,
			})
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}

// ToStockLotResponse converts a lot to a response
func ToStockLotResponse(lot *inventory.StockLot) StockLotResponse {
	return StockLotResponse{
		ID:         lot.ID,
		ProductID:  lot.ProductID,
		LocationID: lot.LocationID,
		Quantity:   lot.Quantity,
		ExpiryDate: lot.ExpiryDate,
		UnitCost:   lot.UnitCost,
		Sequence:   lot.Sequence,
	}
}
