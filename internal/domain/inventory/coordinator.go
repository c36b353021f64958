package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/warehouse/internal/domain/shared"
)

// OrderCoordinator allocates all lines of an order or none of them
type OrderCoordinator struct {
	allocator Allocator
}

// NewOrderCoordinator creates a new order coordinator
func NewOrderCoordinator(allocator Allocator) *OrderCoordinator {
	return &OrderCoordinator{allocator: allocator}
}

// PlaceOrder allocates items in input order. On the first failing line every
// line already allocated is restored, newest first, and an
// OrderAllocationError naming the failing line is returned. If restoring
// fails the error is a RollbackError wrapping both failures.
//
// Every line is validated before any stock is touched.
func (c *OrderCoordinator) PlaceOrder(ctx context.Context, items []AllocationRequest) ([]AllocationResult, error) {
	if len(items) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order must contain at least one item")
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, newOrderAllocationError(i, item, err)
		}
	}

	results := make([]AllocationResult, 0, len(items))
	for i, item := range items {
		res, err := c.allocator.Allocate(ctx, item.ProductID, item.Quantity)
		if err != nil {
			orderErr := newOrderAllocationError(i, item, err)
			if rbErr := c.restoreReverse(ctx, results); rbErr != nil {
				return nil, &RollbackError{Cause: orderErr, RollbackErr: rbErr}
			}
			return nil, orderErr
		}
		results = append(results, *res)
	}
	return results, nil
}

// CancelOrder restores every result. It keeps going past individual failures
// and returns them joined.
func (c *OrderCoordinator) CancelOrder(ctx context.Context, results []AllocationResult) error {
	var errs []error
	for i := range results {
		if err := c.allocator.Restore(ctx, &results[i]); err != nil {
			errs = append(errs, fmt.Errorf("release product %s: %w", results[i].ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *OrderCoordinator) restoreReverse(ctx context.Context, results []AllocationResult) error {
	var errs []error
	for i := len(results) - 1; i >= 0; i-- {
		if err := c.allocator.Restore(ctx, &results[i]); err != nil {
			errs = append(errs, fmt.Errorf("compensate product %s: %w", results[i].ProductID, err))
		}
	}
	return errors.Join(errs...)
}
