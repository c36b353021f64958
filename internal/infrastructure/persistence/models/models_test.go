package models

import (
	"testing"
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLotModel_Mapping(t *testing.T) {
	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	lot, err := inventory.NewStockLot(uuid.New(), uuid.New(), 7, &expiry, decimal.NewFromFloat(2.25))
	require.NoError(t, err)
	lot.Sequence = 4

	m := StockLotModelFromDomain(lot)
	assert.Equal(t, "stock_lots", m.TableName())
	assert.Equal(t, lot.ID, m.ID)
	assert.Equal(t, int64(7), m.Quantity)

	back := m.ToDomain()
	assert.Equal(t, lot.ProductID, back.ProductID)
	assert.Equal(t, lot.LocationID, back.LocationID)
	assert.Equal(t, int64(4), back.Sequence)
	assert.True(t, lot.UnitCost.Equal(back.UnitCost))
	require.NotNil(t, back.ExpiryDate)
	assert.True(t, expiry.Equal(*back.ExpiryDate))
}

func TestOrderAllocationModel_Mapping(t *testing.T) {
	oa, err := inventory.NewOrderAllocation(uuid.New())
	require.NoError(t, err)
	require.NoError(t, oa.MarkAllocated([]inventory.AllocationResult{{
		ProductID: uuid.New(),
		Lots:      []inventory.LotAllocation{{LotID: uuid.New(), Quantity: 3}},
	}}))

	m := OrderAllocationModelFromDomain(oa)
	assert.Equal(t, "ALLOCATED", m.Status)

	back := m.ToDomain()
	assert.Equal(t, oa.OrderID, back.OrderID)
	assert.Equal(t, inventory.AllocationStatusAllocated, back.Status)
	assert.Equal(t, int64(3), back.TotalQuantity())
}
