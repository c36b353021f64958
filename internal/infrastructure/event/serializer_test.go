package event

import (
	"testing"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerializer(t *testing.T) {
	s := NewInventoryEventSerializer()

	assert.Equal(t, []string{
		inventory.EventTypeStockAllocated,
		inventory.EventTypeStockAllocationRejected,
		inventory.EventTypeStockLotRemoved,
		inventory.EventTypeStockReceived,
		inventory.EventTypeStockReleased,
	}, s.RegisteredTypes())

	t.Run("decodes to the registered type", func(t *testing.T) {
		orderID, productID := uuid.New(), uuid.New()
		original := inventory.NewStockAllocatedEvent(orderID, []inventory.AllocationResult{{
			ProductID: productID,
			Lots: []inventory.LotAllocation{
				{LotID: uuid.New(), Quantity: 3, UnitCost: decimal.NewFromInt(2)},
			},
		}})

		data, err := s.Serialize(original)
		require.NoError(t, err)

		decoded, err := s.Deserialize(inventory.EventTypeStockAllocated, data)
		require.NoError(t, err)
		allocated, ok := decoded.(*inventory.StockAllocatedEvent)
		require.True(t, ok)
		assert.Equal(t, original.EventID(), allocated.EventID())
		assert.Equal(t, orderID, allocated.OrderID)
		require.Len(t, allocated.Lines, 1)
		assert.Equal(t, int64(3), allocated.Lines[0].Quantity)
		assert.True(t, decimal.NewFromInt(6).Equal(allocated.Lines[0].Cost))
	})

	t.Run("unknown types are rejected", func(t *testing.T) {
		_, err := NewEventSerializer().Serialize(releasedEvent())
		assert.Error(t, err)

		_, err = s.Deserialize("StockTeleported", []byte(`{}`))
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := s.Deserialize(inventory.EventTypeStockReleased, []byte(`{"order_id": 7`))
		assert.Error(t, err)
	})
}
