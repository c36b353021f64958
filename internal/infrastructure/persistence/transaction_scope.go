package persistence

import (
	"context"

	appinv "github.com/erp/warehouse/internal/application/inventory"
	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Ledger sections and order allocation writes made inside one Execute call
// commit together.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Ledger returns a ledger scope whose sections are savepoints of the current transaction.
func (r *gormTransactionalRepositories) Ledger() inventory.LedgerScope {
	return NewGormLedgerScope(r.tx)
}

// OrderAllocations returns a repository that locks the rows it reads.
func (r *gormTransactionalRepositories) OrderAllocations() inventory.OrderAllocationRepository {
	return NewGormOrderAllocationRepository(r.tx).ForUpdate()
}

// LockProducts takes every product lock of an order up front
func (r *gormTransactionalRepositories) LockProducts(ctx context.Context, productIDs []uuid.UUID) error {
	return NewGormLedgerScope(r.tx).LockProducts(ctx, productIDs)
}

var (
	_ appinv.TransactionScope          = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
	_ appinv.ProductLocker             = (*gormTransactionalRepositories)(nil)
)
