package inventory

import (
	"context"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to the stock ledger and the
// order allocation records. Everything done inside one Execute call commits
// or rolls back together when the backing store supports transactions.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are the repositories bound to one transaction.
type TransactionalRepositories interface {
	// Ledger returns a ledger scope whose per-product sections run inside
	// the current transaction
	Ledger() inventory.LedgerScope
	// OrderAllocations returns the order allocation repository. Reads lock
	// the row where the store supports it.
	OrderAllocations() inventory.OrderAllocationRepository
}

// ProductLocker is implemented by transactional repositories that can take
// the product locks of a whole order up front. Taking them in a fixed order
// keeps two multi-line orders from deadlocking on each other.
type ProductLocker interface {
	LockProducts(ctx context.Context, productIDs []uuid.UUID) error
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// It backs the in-memory ledger, whose per-product scopes already serialize access.
type NoOpTransactionScope struct {
	ledger inventory.LedgerScope
	orders inventory.OrderAllocationRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(ledger inventory.LedgerScope, orders inventory.OrderAllocationRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		ledger: ledger,
		orders: orders,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Ledger returns the ledger scope.
func (s *NoOpTransactionScope) Ledger() inventory.LedgerScope {
	return s.ledger
}

// OrderAllocations returns the order allocation repository.
func (s *NoOpTransactionScope) OrderAllocations() inventory.OrderAllocationRepository {
	return s.orders
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
