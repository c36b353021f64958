package persistence

import (
	"context"
	"slices"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerScope implements inventory.LedgerScope with one database
// transaction per call. Used inside an outer transaction, gorm turns each
// call into a savepoint, so a failed allocation rolls back on its own while
// the product locks are held until the outer transaction ends.
type GormLedgerScope struct {
	db *gorm.DB
}

// NewGormLedgerScope creates a new GormLedgerScope
func NewGormLedgerScope(db *gorm.DB) *GormLedgerScope {
	return &GormLedgerScope{db: db}
}

// Execute locks the product and runs fn against a row-locking repository
func (s *GormLedgerScope) Execute(ctx context.Context, productID uuid.UUID, fn func(ledger inventory.StockLedger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockProducts(tx, productID); err != nil {
			return err
		}
		return fn(NewGormStockLotRepository(tx).ForUpdate())
	})
}

// LockProducts takes the product locks in a fixed order so that two orders
// naming the same products in different order cannot deadlock. The locks
// last until the enclosing transaction ends.
func (s *GormLedgerScope) LockProducts(ctx context.Context, productIDs []uuid.UUID) error {
	ids := slices.Clone(productIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return lockProducts(s.db.WithContext(ctx), slices.Compact(ids)...)
}

// lockProducts takes transaction-scoped advisory locks on PostgreSQL. Row
// locks alone do not cover a product whose first lot is still being created.
// Other dialects (SQLite in tests) serialize writers on their own.
func lockProducts(tx *gorm.DB, productIDs ...uuid.UUID) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	for _, id := range productIDs {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", id.String()).Error; err != nil {
			return err
		}
	}
	return nil
}

var _ inventory.LedgerScope = (*GormLedgerScope)(nil)
