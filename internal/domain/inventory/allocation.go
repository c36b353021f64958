package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationRequest asks for a quantity of one product
type AllocationRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
}

// Validate rejects non-positive quantities
func (r AllocationRequest) Validate() error {
	if r.Quantity <= 0 {
		return &InvalidQuantityError{Quantity: r.Quantity}
	}
	return nil
}

// LotAllocation is the quantity taken from a single lot
type LotAllocation struct {
	LotID      uuid.UUID       `json:"lot_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// AllocationResult records which lots served a request, in the order they were
// drawn. It is everything Restore needs to undo the allocation.
// Released is set once an order line's stock has gone back to the ledger.
type AllocationResult struct {
	ProductID uuid.UUID       `json:"product_id"`
	Lots      []LotAllocation `json:"lots"`
	Released  bool            `json:"released,omitempty"`
}

// TotalQuantity sums the allocated quantity across lots
func (r *AllocationResult) TotalQuantity() int64 {
	var total int64
	for _, l := range r.Lots {
		total += l.Quantity
	}
	return total
}

// TotalCost values the allocation at each lot's unit cost
func (r *AllocationResult) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lots {
		total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}
