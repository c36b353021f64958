package inventory

import (
	"time"

	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLot is the on-hand quantity of one product at one storage location.
// There is at most one lot per (ProductID, LocationID). Lots that reach zero
// are kept for history and are skipped by allocation.
type StockLot struct {
	shared.BaseEntity
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int64
	ExpiryDate *time.Time
	UnitCost   decimal.Decimal
	// Sequence is the per-product insertion order, used to break expiry ties
	Sequence int64
}

// NewStockLot creates a lot for a product at a location
func NewStockLot(productID, locationID uuid.UUID, quantity int64, expiryDate *time.Time, unitCost decimal.Decimal) (*StockLot, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LOCATION", "Location ID cannot be empty")
	}
	if quantity < 0 {
		return nil, &NegativeStockError{Current: 0, Delta: quantity}
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}

	return &StockLot{
		BaseEntity: shared.NewBaseEntity(),
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   quantity,
		ExpiryDate: normalizeExpiry(expiryDate),
		UnitCost:   unitCost,
	}, nil
}

// HasStock reports whether the lot can contribute to an allocation
func (l *StockLot) HasStock() bool {
	return l.Quantity > 0
}

// Adjust applies a signed quantity change. The lot is left untouched when the
// result would be negative.
func (l *StockLot) Adjust(delta int64) error {
	if l.Quantity+delta < 0 {
		return &NegativeStockError{LotID: l.ID, Current: l.Quantity, Delta: delta}
	}
	l.Quantity += delta
	l.Touch()
	return nil
}

// MergeExpiry keeps the earlier of the stored and incoming expiry dates.
// A lot without an expiry date adopts the incoming one.
func (l *StockLot) MergeExpiry(expiryDate *time.Time) {
	expiryDate = normalizeExpiry(expiryDate)
	if expiryDate == nil {
		return
	}
	if l.ExpiryDate == nil || expiryDate.Before(*l.ExpiryDate) {
		l.ExpiryDate = expiryDate
	}
}

// IsExpired reports whether the lot's expiry date is before the given day
func (l *StockLot) IsExpired(at time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(truncateDay(at))
}

// Clone returns a copy that shares no pointers with the receiver
func (l *StockLot) Clone() StockLot {
	c := *l
	if l.ExpiryDate != nil {
		d := *l.ExpiryDate
		c.ExpiryDate = &d
	}
	return c
}

// normalizeExpiry strips the time of day; expiry is a calendar date.
func normalizeExpiry(expiryDate *time.Time) *time.Time {
	if expiryDate == nil || expiryDate.IsZero() {
		return nil
	}
	d := truncateDay(*expiryDate)
	return &d
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
