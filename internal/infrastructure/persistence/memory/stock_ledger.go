package memory

import (
	"context"
	"sync"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
)

// StockLedger keeps stock lots in process memory. Execute serializes work per
// product with one mutex per product id; individual calls are atomic on
// their own. Nothing is rolled back when a scope returns an error, so callers
// rely on the allocator's own compensation.
type StockLedger struct {
	mu        sync.RWMutex
	lots      map[uuid.UUID]*inventory.StockLot
	byProduct map[uuid.UUID][]uuid.UUID
	sequence  map[uuid.UUID]int64

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewStockLedger creates an empty in-memory ledger
func NewStockLedger() *StockLedger {
	return &StockLedger{
		lots:      make(map[uuid.UUID]*inventory.StockLot),
		byProduct: make(map[uuid.UUID][]uuid.UUID),
		sequence:  make(map[uuid.UUID]int64),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

var (
	_ inventory.StockLedger = (*StockLedger)(nil)
	_ inventory.LedgerScope = (*StockLedger)(nil)
)

func (s *StockLedger) productLock(productID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[productID] = l
	}
	return l
}

// Execute runs fn while holding the product's lock
func (s *StockLedger) Execute(ctx context.Context, productID uuid.UUID, fn func(ledger inventory.StockLedger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.productLock(productID)
	l.Lock()
	defer l.Unlock()
	return fn(s)
}

// LotsForProduct returns copies of the product's lots in consumption order
func (s *StockLedger) LotsForProduct(ctx context.Context, productID uuid.UUID) ([]inventory.StockLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byProduct[productID]
	lots := make([]inventory.StockLot, 0, len(ids))
	for _, id := range ids {
		lots = append(lots, s.lots[id].Clone())
	}
	inventory.SortForConsumption(lots)
	return lots, nil
}

func (s *StockLedger) FindLot(ctx context.Context, lotID uuid.UUID) (*inventory.StockLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return nil, inventory.ErrLotNotFound
	}
	c := lot.Clone()
	return &c, nil
}

func (s *StockLedger) AdjustLot(ctx context.Context, lotID uuid.UUID, delta int64) (*inventory.StockLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return nil, inventory.ErrLotNotFound
	}
	if err := lot.Adjust(delta); err != nil {
		return nil, err
	}
	c := lot.Clone()
	return &c, nil
}

func (s *StockLedger) Receive(ctx context.Context, req inventory.ReceiveRequest) (*inventory.StockLot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byProduct[req.ProductID] {
		lot := s.lots[id]
		if lot.LocationID != req.LocationID {
			continue
		}
		if err := lot.Adjust(req.Quantity); err != nil {
			return nil, err
		}
		lot.MergeExpiry(req.ExpiryDate)
		c := lot.Clone()
		return &c, nil
	}

	lot, err := inventory.NewStockLot(req.ProductID, req.LocationID, req.Quantity, req.ExpiryDate, req.UnitCost)
	if err != nil {
		return nil, err
	}
	s.sequence[req.ProductID]++
	lot.Sequence = s.sequence[req.ProductID]
	s.lots[lot.ID] = lot
	s.byProduct[req.ProductID] = append(s.byProduct[req.ProductID], lot.ID)

	c := lot.Clone()
	return &c, nil
}

// RemoveLot deletes an empty lot
func (s *StockLedger) RemoveLot(ctx context.Context, lotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return inventory.ErrLotNotFound
	}
	if lot.Quantity != 0 {
		return &inventory.LotNotEmptyError{LotID: lotID, Quantity: lot.Quantity}
	}
	delete(s.lots, lotID)
	ids := s.byProduct[lot.ProductID]
	for i, id := range ids {
		if id == lotID {
			s.byProduct[lot.ProductID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}
