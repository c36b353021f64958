package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/google/uuid"
)

// AllocationStatus is the stock state of an order
type AllocationStatus string

const (
	AllocationStatusUnallocated AllocationStatus = "UNALLOCATED"
	AllocationStatusAllocated   AllocationStatus = "ALLOCATED"
	AllocationStatusReleased    AllocationStatus = "RELEASED"
)

// IsValid reports whether the status is known
func (s AllocationStatus) IsValid() bool {
	switch s {
	case AllocationStatusUnallocated, AllocationStatusAllocated, AllocationStatusReleased:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s AllocationStatus) IsTerminal() bool {
	return s == AllocationStatusReleased
}

// OrderAllocation keeps the allocation results of an order so they can be
// restored exactly on cancellation.
//
// Unallocated -> Allocated -> Released. Released is terminal.
type OrderAllocation struct {
	shared.BaseEntity
	OrderID     uuid.UUID
	Status      AllocationStatus
	Results     []AllocationResult
	AllocatedAt *time.Time
	ReleasedAt  *time.Time
}

// NewOrderAllocation creates an unallocated record for the order
func NewOrderAllocation(orderID uuid.UUID) (*OrderAllocation, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
	}
	return &OrderAllocation{
		BaseEntity: shared.NewBaseEntity(),
		OrderID:    orderID,
		Status:     AllocationStatusUnallocated,
	}, nil
}

// MarkAllocated stores the results of a successful placement
func (o *OrderAllocation) MarkAllocated(results []AllocationResult) error {
	if o.Status != AllocationStatusUnallocated {
		return shared.NewDomainError("INVALID_STATE", "Order stock can only be allocated once, current status is "+string(o.Status))
	}
	if len(results) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "Allocation results cannot be empty")
	}
	now := time.Now()
	o.Results = results
	o.Status = AllocationStatusAllocated
	o.AllocatedAt = &now
	o.Touch()
	return nil
}

// Release marks the allocated stock as returned to the ledger
func (o *OrderAllocation) Release() error {
	if o.Status != AllocationStatusAllocated {
		return shared.NewDomainError("INVALID_STATE", "Only allocated orders can be released, current status is "+string(o.Status))
	}
	for i := range o.Results {
		o.Results[i].Released = true
	}
	o.markReleased()
	return nil
}

// ReleaseLine marks one order line as returned and hands back its result so
// the caller can restore it. Line indexes are those of the placed order and
// do not shift. Releasing the last held line releases the order.
func (o *OrderAllocation) ReleaseLine(index int) (AllocationResult, error) {
	if o.Status != AllocationStatusAllocated {
		return AllocationResult{}, shared.NewDomainError("INVALID_STATE", "Only lines of allocated orders can be released, current status is "+string(o.Status))
	}
	if index < 0 || index >= len(o.Results) {
		return AllocationResult{}, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Order line %d not found", index))
	}
	if o.Results[index].Released {
		return AllocationResult{}, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Order line %d is already released", index))
	}

	o.Results[index].Released = true
	if len(o.HeldResults()) == 0 {
		o.markReleased()
	} else {
		o.Touch()
	}
	return o.Results[index], nil
}

// HeldResults returns the lines whose stock is still allocated
func (o *OrderAllocation) HeldResults() []AllocationResult {
	held := make([]AllocationResult, 0, len(o.Results))
	for _, r := range o.Results {
		if !r.Released {
			held = append(held, r)
		}
	}
	return held
}

// HeldQuantity sums the quantity of lines still allocated
func (o *OrderAllocation) HeldQuantity() int64 {
	var total int64
	for _, r := range o.HeldResults() {
		total += r.TotalQuantity()
	}
	return total
}

func (o *OrderAllocation) markReleased() {
	now := time.Now()
	o.Status = AllocationStatusReleased
	o.ReleasedAt = &now
	o.Touch()
}

// TotalQuantity sums the quantity across all results
func (o *OrderAllocation) TotalQuantity() int64 {
	var total int64
	for i := range o.Results {
		total += o.Results[i].TotalQuantity()
	}
	return total
}

// OrderAllocationRepository persists order allocations
type OrderAllocationRepository interface {
	// FindByOrderID returns ErrOrderAllocationNotFound when absent
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*OrderAllocation, error)
	Save(ctx context.Context, allocation *OrderAllocation) error
}
