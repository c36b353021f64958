package inventory

import (
	"errors"
	"fmt"

	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/google/uuid"
)

var (
	// ErrLotNotFound is returned by a StockLedger for an unknown lot id
	ErrLotNotFound = shared.NewDomainError("NOT_FOUND", "Stock lot not found")

	// ErrOrderAllocationNotFound is returned when an order has never been allocated
	ErrOrderAllocationNotFound = shared.NewDomainError("NOT_FOUND", "Order allocation not found")
)

// InvalidQuantityError rejects a non-positive requested quantity
type InvalidQuantityError struct {
	Quantity int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error {
	return shared.ErrInvalidQuantity
}

// InsufficientStockError reports that the product's positive lots cannot cover
// the request. Available is the total before any decrement was attempted.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// Shortfall is the quantity that could not be covered
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// NegativeStockError rejects an adjustment that would drive a lot below zero
type NegativeStockError struct {
	LotID   uuid.UUID
	Current int64
	Delta   int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("lot %s: adjusting %d by %d would make stock negative", e.LotID, e.Current, e.Delta)
}

func (e *NegativeStockError) Unwrap() error {
	return shared.ErrNegativeStock
}

// LotNotEmptyError rejects removing a lot that still holds stock
type LotNotEmptyError struct {
	LotID    uuid.UUID
	Quantity int64
}

func (e *LotNotEmptyError) Error() string {
	return fmt.Sprintf("lot %s still holds %d units and cannot be removed", e.LotID, e.Quantity)
}

func (e *LotNotEmptyError) Unwrap() error {
	return shared.ErrInvalidState
}

// OrderAllocationError names the order line that could not be allocated.
// Earlier lines have already been restored when this error is returned.
type OrderAllocationError struct {
	ItemIndex int
	ProductID uuid.UUID
	Requested int64
	// Shortfall is zero when the line failed for a reason other than stock
	Shortfall int64
	Cause     error
}

func (e *OrderAllocationError) Error() string {
	if e.Shortfall > 0 {
		return fmt.Sprintf("order item %d (product %s) short by %d: %v", e.ItemIndex, e.ProductID, e.Shortfall, e.Cause)
	}
	return fmt.Sprintf("order item %d (product %s): %v", e.ItemIndex, e.ProductID, e.Cause)
}

func (e *OrderAllocationError) Unwrap() error {
	return e.Cause
}

func newOrderAllocationError(index int, item AllocationRequest, cause error) *OrderAllocationError {
	oe := &OrderAllocationError{
		ItemIndex: index,
		ProductID: item.ProductID,
		Requested: item.Quantity,
		Cause:     cause,
	}
	if ise, ok := AsInsufficientStock(cause); ok {
		oe.Shortfall = ise.Shortfall()
	}
	return oe
}

// RollbackError means compensation itself failed after Cause. The stock
// ledger may no longer be consistent and needs operator attention.
type RollbackError struct {
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed: %v (after: %v)", e.RollbackErr, e.Cause)
}

// Unwrap exposes the rollback sentinel first so callers mapping a
// DomainError see ROLLBACK_FAILED rather than the original cause.
func (e *RollbackError) Unwrap() []error {
	return []error{shared.ErrRollbackFailed, e.Cause, e.RollbackErr}
}

// AsInsufficientStock extracts an InsufficientStockError from err's chain
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

// IsRollbackFailure reports whether err carries a failed compensation
func IsRollbackFailure(err error) bool {
	var rbe *RollbackError
	return errors.As(err, &rbe)
}
