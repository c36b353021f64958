package persistence

import (
	"context"
	"testing"

	appinv "github.com/erp/warehouse/internal/application/inventory"
	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/erp/warehouse/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newGormService(t *testing.T) (*appinv.AllocationService, *gorm.DB) {
	t.Helper()
	db := newSQLiteDB(t)
	svc := appinv.NewAllocationService(
		NewGormTransactionScope(db),
		NewGormOrderAllocationRepository(db),
		appinv.ServiceConfig{},
		zaptest.NewLogger(t),
	)
	return svc, db
}

func receiveVia(t *testing.T, svc *appinv.AllocationService, productID uuid.UUID, qty int64, offset int) {
	t.Helper()
	_, err := svc.ReceiveStock(context.Background(), appinv.ReceiveStockCommand{
		ProductID:  productID,
		LocationID: uuid.New(),
		Quantity:   qty,
		ExpiryDate: day(offset),
		UnitCost:   decimal.NewFromInt(1),
	})
	require.NoError(t, err)
}

func TestGormTransactionScope_PlaceAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, db := newGormService(t)
	apples, pears := uuid.New(), uuid.New()
	receiveVia(t, svc, apples, 5, 1)
	receiveVia(t, svc, apples, 5, 2)
	receiveVia(t, svc, pears, 3, 1)

	orderID := uuid.New()
	placed, err := svc.PlaceOrder(ctx, appinv.PlaceOrderCommand{
		OrderID: orderID,
		Items: []appinv.OrderLine{
			{ProductID: apples, Quantity: 7},
			{ProductID: pears, Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, string(inventory.AllocationStatusAllocated), placed.Status)
	assert.Equal(t, int64(10), placed.TotalQuantity)

	var row models.OrderAllocationModel
	require.NoError(t, db.Where("order_id = ?", orderID).First(&row).Error)
	require.Len(t, row.Results, 2)
	assert.Len(t, row.Results[0].Lots, 2)

	available, err := svc.AvailableQuantity(ctx, apples)
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)

	released, err := svc.CancelOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, string(inventory.AllocationStatusReleased), released.Status)

	for product, want := range map[uuid.UUID]int64{apples: 10, pears: 3} {
		available, err := svc.AvailableQuantity(ctx, product)
		require.NoError(t, err)
		assert.Equal(t, want, available)
	}

	_, err = svc.CancelOrder(ctx, orderID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestGormTransactionScope_FailedLineRollsBackEarlierLines(t *testing.T) {
	ctx := context.Background()
	svc, db := newGormService(t)
	apples, pears := uuid.New(), uuid.New()
	receiveVia(t, svc, apples, 5, 1)
	receiveVia(t, svc, pears, 1, 1)

	orderID := uuid.New()
	_, err := svc.PlaceOrder(ctx, appinv.PlaceOrderCommand{
		OrderID: orderID,
		Items: []appinv.OrderLine{
			{ProductID: apples, Quantity: 4},
			{ProductID: pears, Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)

	available, err := svc.AvailableQuantity(ctx, apples)
	require.NoError(t, err)
	assert.Equal(t, int64(5), available)

	var count int64
	require.NoError(t, db.Model(&models.OrderAllocationModel{}).Where("order_id = ?", orderID).Count(&count).Error)
	assert.Zero(t, count)

	_, err = svc.GetOrderAllocation(ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrOrderAllocationNotFound)
}

func TestGormTransactionScope_ExecuteRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	productID := uuid.New()
	lot := receiveLot(t, NewGormStockLotRepository(db), productID, uuid.New(), 5, nil)

	err := NewGormTransactionScope(db).Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		err := repos.Ledger().Execute(ctx, productID, func(ledger inventory.StockLedger) error {
			_, err := ledger.AdjustLot(ctx, lot.ID, -5)
			return err
		})
		require.NoError(t, err)

		oa, err := inventory.NewOrderAllocation(uuid.New())
		require.NoError(t, err)
		require.NoError(t, repos.OrderAllocations().Save(ctx, oa))
		return shared.ErrConcurrencyConflict
	})
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	found, err := NewGormStockLotRepository(db).FindLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), found.Quantity)

	var count int64
	require.NoError(t, db.Model(&models.OrderAllocationModel{}).Count(&count).Error)
	assert.Zero(t, count)
}
