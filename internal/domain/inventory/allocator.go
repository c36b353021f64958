package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Allocator deducts and restores stock for a single product
type Allocator interface {
	Allocate(ctx context.Context, productID uuid.UUID, quantity int64) (*AllocationResult, error)
	Restore(ctx context.Context, result *AllocationResult) error
}

// StockAllocator draws stock from a product's lots in expiry order.
// Each call holds the product's LedgerScope for its whole duration, so an
// allocation either removes exactly the requested quantity or nothing.
type StockAllocator struct {
	scope              LedgerScope
	fallbackLocationID uuid.UUID
}

// StockAllocatorOption is a functional option for configuring StockAllocator
type StockAllocatorOption func(*StockAllocator)

// WithFallbackLocation sets where Restore books stock whose original lot is gone
func WithFallbackLocation(locationID uuid.UUID) StockAllocatorOption {
	return func(a *StockAllocator) {
		a.fallbackLocationID = locationID
	}
}

// NewStockAllocator creates a new stock allocator
func NewStockAllocator(scope LedgerScope, opts ...StockAllocatorOption) *StockAllocator {
	a := &StockAllocator{scope: scope}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FallbackLocationID returns the configured fallback location, or uuid.Nil
func (a *StockAllocator) FallbackLocationID() uuid.UUID {
	return a.fallbackLocationID
}

// Allocate removes quantity units of the product, earliest expiry first.
//
// Non-positive quantities are rejected with InvalidQuantityError before the
// ledger is touched. If the positive lots hold less than quantity the call
// fails with InsufficientStockError and the ledger is unchanged. If a
// decrement fails part way, the decrements already applied are reversed; a
// failure while reversing is reported as RollbackError.
func (a *StockAllocator) Allocate(ctx context.Context, productID uuid.UUID, quantity int64) (*AllocationResult, error) {
	req := AllocationRequest{ProductID: productID, Quantity: quantity}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *AllocationResult
	err := a.scope.Execute(ctx, productID, func(ledger StockLedger) error {
		r, err := allocateFrom(ctx, ledger, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func allocateFrom(ctx context.Context, ledger StockLedger, req AllocationRequest) (*AllocationResult, error) {
	lots, err := ledger.LotsForProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load lots for product %s: %w", req.ProductID, err)
	}

	candidates := make([]StockLot, 0, len(lots))
	for i := range lots {
		if lots[i].HasStock() {
			candidates = append(candidates, lots[i])
		}
	}
	SortForConsumption(candidates)

	available := AvailableTotal(candidates)
	if available < req.Quantity {
		return nil, &InsufficientStockError{
			ProductID: req.ProductID,
			Requested: req.Quantity,
			Available: available,
		}
	}

	result := &AllocationResult{
		ProductID: req.ProductID,
		Lots:      make([]LotAllocation, 0, len(candidates)),
	}
	remaining := req.Quantity
	for i := range candidates {
		if remaining == 0 {
			break
		}
		lot := &candidates[i]
		take := min(remaining, lot.Quantity)

		if _, err := ledger.AdjustLot(ctx, lot.ID, -take); err != nil {
			cause := fmt.Errorf("decrement lot %s by %d: %w", lot.ID, take, err)
			return nil, reverse(ctx, ledger, result.Lots, cause)
		}
		result.Lots = append(result.Lots, LotAllocation{
			LotID:      lot.ID,
			LocationID: lot.LocationID,
			Quantity:   take,
			UnitCost:   lot.UnitCost,
		})
		remaining -= take
	}

	return result, nil
}

// reverse re-increments applied lots newest first and returns cause, or a
// RollbackError if any re-increment fails.
func reverse(ctx context.Context, ledger StockLedger, applied []LotAllocation, cause error) error {
	for i := len(applied) - 1; i >= 0; i-- {
		la := applied[i]
		if _, err := ledger.AdjustLot(ctx, la.LotID, la.Quantity); err != nil {
			return &RollbackError{
				Cause:       cause,
				RollbackErr: fmt.Errorf("re-increment lot %s by %d: %w", la.LotID, la.Quantity, err),
			}
		}
	}
	return cause
}

// Restore puts every quantity in result back on its lot. When a lot no longer
// exists the quantity is received, without expiry, at the fallback location
// (or the lot's recorded location when no fallback is configured). A location
// holds one lot per product, so if a dated lot already sits there the
// restored units join it and take its expiry date.
func (a *StockAllocator) Restore(ctx context.Context, result *AllocationResult) error {
	if result == nil || len(result.Lots) == 0 {
		return nil
	}

	return a.scope.Execute(ctx, result.ProductID, func(ledger StockLedger) error {
		for _, la := range result.Lots {
			if la.Quantity <= 0 {
				continue
			}
			_, err := ledger.AdjustLot(ctx, la.LotID, la.Quantity)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrLotNotFound) {
				return fmt.Errorf("restore lot %s: %w", la.LotID, err)
			}

			locationID := a.fallbackFor(la)
			if _, err := ledger.Receive(ctx, ReceiveRequest{
				ProductID:  result.ProductID,
				LocationID: locationID,
				Quantity:   la.Quantity,
				UnitCost:   la.UnitCost,
			}); err != nil {
				return fmt.Errorf("restore %d units of product %s at location %s: %w",
					la.Quantity, result.ProductID, locationID, err)
			}
		}
		return nil
	})
}

func (a *StockAllocator) fallbackFor(la LotAllocation) uuid.UUID {
	if a.fallbackLocationID != uuid.Nil {
		return a.fallbackLocationID
	}
	return la.LocationID
}

var _ Allocator = (*StockAllocator)(nil)
