package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeLedger is a single-lock in-memory StockLedger and LedgerScope with
// failure injection for adjust calls.
type fakeLedger struct {
	mu       sync.Mutex
	lots     map[uuid.UUID]*StockLot
	seq      int64
	scopes   int
	adjusts  int
	failWhen func(call int, lotID uuid.UUID, delta int64) error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{lots: make(map[uuid.UUID]*StockLot)}
}

func (f *fakeLedger) addLot(productID uuid.UUID, quantity int64, expiry *time.Time) *StockLot {
	lot, err := NewStockLot(productID, uuid.New(), quantity, expiry, decimal.NewFromInt(2))
	if err != nil {
		panic(err)
	}
	f.seq++
	lot.Sequence = f.seq
	f.lots[lot.ID] = lot
	return lot
}

func (f *fakeLedger) quantity(lotID uuid.UUID) int64 {
	return f.lots[lotID].Quantity
}

func (f *fakeLedger) total(productID uuid.UUID) int64 {
	var total int64
	for _, l := range f.lots {
		if l.ProductID == productID {
			total += l.Quantity
		}
	}
	return total
}

func (f *fakeLedger) Execute(ctx context.Context, productID uuid.UUID, fn func(ledger StockLedger) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes++
	return fn(f)
}

func (f *fakeLedger) LotsForProduct(ctx context.Context, productID uuid.UUID) ([]StockLot, error) {
	var lots []StockLot
	for _, l := range f.lots {
		if l.ProductID == productID {
			lots = append(lots, l.Clone())
		}
	}
	SortForConsumption(lots)
	return lots, nil
}

func (f *fakeLedger) FindLot(ctx context.Context, lotID uuid.UUID) (*StockLot, error) {
	l, ok := f.lots[lotID]
	if !ok {
		return nil, ErrLotNotFound
	}
	c := l.Clone()
	return &c, nil
}

func (f *fakeLedger) AdjustLot(ctx context.Context, lotID uuid.UUID, delta int64) (*StockLot, error) {
	f.adjusts++
	if f.failWhen != nil {
		if err := f.failWhen(f.adjusts, lotID, delta); err != nil {
			return nil, err
		}
	}
	l, ok := f.lots[lotID]
	if !ok {
		return nil, ErrLotNotFound
	}
	if err := l.Adjust(delta); err != nil {
		return nil, err
	}
	c := l.Clone()
	return &c, nil
}

func (f *fakeLedger) Receive(ctx context.Context, req ReceiveRequest) (*StockLot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, l := range f.lots {
		if l.ProductID == req.ProductID && l.LocationID == req.LocationID {
			l.Quantity += req.Quantity
			l.MergeExpiry(req.ExpiryDate)
			c := l.Clone()
			return &c, nil
		}
	}
	lot, err := NewStockLot(req.ProductID, req.LocationID, req.Quantity, req.ExpiryDate, req.UnitCost)
	if err != nil {
		return nil, err
	}
	f.seq++
	lot.Sequence = f.seq
	f.lots[lot.ID] = lot
	c := lot.Clone()
	return &c, nil
}

func (f *fakeLedger) RemoveLot(ctx context.Context, lotID uuid.UUID) error {
	l, ok := f.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	if l.Quantity != 0 {
		return &LotNotEmptyError{LotID: lotID, Quantity: l.Quantity}
	}
	delete(f.lots, lotID)
	return nil
}

func (f *fakeLedger) lotAt(productID, locationID uuid.UUID) *StockLot {
	for _, l := range f.lots {
		if l.ProductID == productID && l.LocationID == locationID {
			return l
		}
	}
	return nil
}

func day(offset int) *time.Time {
	d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	return &d
}
