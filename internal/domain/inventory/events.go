package inventory

import (
	"errors"

	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeOrderAllocation = "OrderAllocation"
	AggregateTypeStockLot        = "StockLot"
)

const (
	EventTypeStockAllocated          = "StockAllocated"
	EventTypeStockAllocationRejected = "StockAllocationRejected"
	EventTypeStockReleased           = "StockReleased"
	EventTypeStockReceived           = "StockReceived"
	EventTypeStockLotRemoved         = "StockLotRemoved"
)

// AllocatedLine summarizes one order line for events
type AllocatedLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	LotCount  int             `json:"lot_count"`
	Cost      decimal.Decimal `json:"cost"`
}

func allocatedLines(results []AllocationResult) []AllocatedLine {
	lines := make([]AllocatedLine, 0, len(results))
	for i := range results {
		lines = append(lines, AllocatedLine{
			ProductID: results[i].ProductID,
			Quantity:  results[i].TotalQuantity(),
			LotCount:  len(results[i].Lots),
			Cost:      results[i].TotalCost(),
		})
	}
	return lines
}

// StockAllocatedEvent is raised when every line of an order was allocated
type StockAllocatedEvent struct {
	shared.BaseDomainEvent
	OrderID uuid.UUID       `json:"order_id"`
	Lines   []AllocatedLine `json:"lines"`
}

// NewStockAllocatedEvent creates a new StockAllocatedEvent
func NewStockAllocatedEvent(orderID uuid.UUID, results []AllocationResult) *StockAllocatedEvent {
	return &StockAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockAllocated, AggregateTypeOrderAllocation, orderID),
		OrderID:         orderID,
		Lines:           allocatedLines(results),
	}
}

// StockAllocationRejectedEvent is raised when an order could not be allocated
// and nothing was deducted.
type StockAllocationRejectedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id,omitempty"`
	ItemIndex int       `json:"item_index"`
	Requested int64     `json:"requested"`
	Shortfall int64     `json:"shortfall"`
	Reason    string    `json:"reason"`
}

// NewStockAllocationRejectedEvent creates a new StockAllocationRejectedEvent
func NewStockAllocationRejectedEvent(orderID uuid.UUID, cause error) *StockAllocationRejectedEvent {
	e := &StockAllocationRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockAllocationRejected, AggregateTypeOrderAllocation, orderID),
		OrderID:         orderID,
		ItemIndex:       -1,
		Reason:          cause.Error(),
	}
	var oe *OrderAllocationError
	if errors.As(cause, &oe) {
		e.ProductID = oe.ProductID
		e.ItemIndex = oe.ItemIndex
		e.Requested = oe.Requested
		e.Shortfall = oe.Shortfall
	}
	return e
}

// StockReleasedEvent is raised when allocated stock went back to the ledger.
// Lines holds only what this release returned. LineIndex is -1 when the
// whole order was released.
type StockReleasedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID       `json:"order_id"`
	LineIndex int             `json:"line_index"`
	Lines     []AllocatedLine `json:"lines"`
}

// NewStockReleasedEvent creates a new StockReleasedEvent for a whole order
func NewStockReleasedEvent(orderID uuid.UUID, results []AllocationResult) *StockReleasedEvent {
	return &StockReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReleased, AggregateTypeOrderAllocation, orderID),
		OrderID:         orderID,
		LineIndex:       -1,
		Lines:           allocatedLines(results),
	}
}

// NewStockLineReleasedEvent creates a StockReleasedEvent for one order line
func NewStockLineReleasedEvent(orderID uuid.UUID, index int, result AllocationResult) *StockReleasedEvent {
	e := NewStockReleasedEvent(orderID, []AllocationResult{result})
	e.LineIndex = index
	return e
}

// StockReceivedEvent is raised when stock is booked into a lot
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	LotID      uuid.UUID `json:"lot_id"`
	ProductID  uuid.UUID `json:"product_id"`
	LocationID uuid.UUID `json:"location_id"`
	Quantity   int64     `json:"quantity"`
	OnHand     int64     `json:"on_hand"`
}

// NewStockReceivedEvent creates a new StockReceivedEvent
func NewStockReceivedEvent(lot *StockLot, received int64) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReceived, AggregateTypeStockLot, lot.ID),
		LotID:           lot.ID,
		ProductID:       lot.ProductID,
		LocationID:      lot.LocationID,
		Quantity:        received,
		OnHand:          lot.Quantity,
	}
}

// StockLotRemovedEvent is raised when an empty lot is deleted
type StockLotRemovedEvent struct {
	shared.BaseDomainEvent
	LotID      uuid.UUID `json:"lot_id"`
	ProductID  uuid.UUID `json:"product_id"`
	LocationID uuid.UUID `json:"location_id"`
}

// NewStockLotRemovedEvent creates a new StockLotRemovedEvent
func NewStockLotRemovedEvent(lot *StockLot) *StockLotRemovedEvent {
	return &StockLotRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockLotRemoved, AggregateTypeStockLot, lot.ID),
		LotID:           lot.ID,
		ProductID:       lot.ProductID,
		LocationID:      lot.LocationID,
	}
}
