package inventory

import (
	"context"
	"time"

	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveRequest books incoming stock for a product at a location
type ReceiveRequest struct {
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int64
	ExpiryDate *time.Time
	UnitCost   decimal.Decimal
}

// Validate validates the receive request
func (r ReceiveRequest) Validate() error {
	if r.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if r.LocationID == uuid.Nil {
		return shared.NewDomainError("INVALID_LOCATION", "Location ID cannot be empty")
	}
	if r.Quantity <= 0 {
		return &InvalidQuantityError{Quantity: r.Quantity}
	}
	if r.UnitCost.IsNegative() {
		return shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}
	return nil
}

// StockLedger is the authoritative store of lot quantities.
// AdjustLot is the only operation that changes an existing lot's quantity.
type StockLedger interface {
	// LotsForProduct returns every lot of the product, zero-quantity ones
	// included, in consumption order (see ConsumesBefore).
	LotsForProduct(ctx context.Context, productID uuid.UUID) ([]StockLot, error)

	// FindLot returns ErrLotNotFound for an unknown id
	FindLot(ctx context.Context, lotID uuid.UUID) (*StockLot, error)

	// AdjustLot applies delta and returns the updated lot. It fails with
	// NegativeStockError if the result would be below zero and with
	// ErrLotNotFound if the lot does not exist.
	AdjustLot(ctx context.Context, lotID uuid.UUID, delta int64) (*StockLot, error)

	// Receive adds to the lot at (product, location), creating it if needed.
	// The earlier of the existing and incoming expiry dates is kept.
	Receive(ctx context.Context, req ReceiveRequest) (*StockLot, error)

	// RemoveLot deletes an empty lot. A lot with stock left fails with
	// LotNotEmptyError, an unknown one with ErrLotNotFound.
	RemoveLot(ctx context.Context, lotID uuid.UUID) error
}

// LedgerScope grants exclusive access to one product's lots.
// No other scope for the same product runs while fn executes, and when the
// backing store is transactional an error from fn discards fn's writes.
type LedgerScope interface {
	Execute(ctx context.Context, productID uuid.UUID, fn func(ledger StockLedger) error) error
}
