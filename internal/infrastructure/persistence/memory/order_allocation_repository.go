package memory

import (
	"context"
	"sync"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
)

// OrderAllocationRepository stores order allocations in memory
type OrderAllocationRepository struct {
	mu      sync.RWMutex
	byOrder map[uuid.UUID]inventory.OrderAllocation
}

// NewOrderAllocationRepository creates an empty repository
func NewOrderAllocationRepository() *OrderAllocationRepository {
	return &OrderAllocationRepository{byOrder: make(map[uuid.UUID]inventory.OrderAllocation)}
}

var _ inventory.OrderAllocationRepository = (*OrderAllocationRepository)(nil)

func (r *OrderAllocationRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*inventory.OrderAllocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	oa, ok := r.byOrder[orderID]
	if !ok {
		return nil, inventory.ErrOrderAllocationNotFound
	}
	c := copyAllocation(oa)
	return &c, nil
}

func (r *OrderAllocationRepository) Save(ctx context.Context, allocation *inventory.OrderAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOrder[allocation.OrderID] = copyAllocation(*allocation)
	return nil
}

func copyAllocation(oa inventory.OrderAllocation) inventory.OrderAllocation {
	results := make([]inventory.AllocationResult, len(oa.Results))
	for i, r := range oa.Results {
		r.Lots = append([]inventory.LotAllocation(nil), r.Lots...)
		results[i] = r
	}
	oa.Results = results
	return oa
}
