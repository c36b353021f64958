package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/erp/warehouse/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteDB opens a private in-memory database with the ledger schema.
// A single connection keeps every statement on the same in-memory store.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.StockLotModel{}, &models.OrderAllocationModel{}))
	return db
}

func day(offset int) *time.Time {
	d := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	return &d
}

func receiveLot(t *testing.T, repo *GormStockLotRepository, productID, locationID uuid.UUID, qty int64, expiry *time.Time) *inventory.StockLot {
	t.Helper()
	lot, err := repo.Receive(context.Background(), inventory.ReceiveRequest{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   qty,
		ExpiryDate: expiry,
		UnitCost:   decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	return lot
}

func TestGormStockLotRepository_Receive(t *testing.T) {
	ctx := context.Background()

	t.Run("creates lots with increasing sequence", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		productID := uuid.New()

		first := receiveLot(t, repo, productID, uuid.New(), 5, day(3))
		second := receiveLot(t, repo, productID, uuid.New(), 7, nil)

		assert.Equal(t, int64(1), first.Sequence)
		assert.Equal(t, int64(2), second.Sequence)
		assert.Equal(t, int64(5), first.Quantity)
		assert.Nil(t, second.ExpiryDate)
	})

	t.Run("merges into the existing lot and keeps the earlier expiry", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		productID, locationID := uuid.New(), uuid.New()

		created := receiveLot(t, repo, productID, locationID, 5, day(10))
		merged := receiveLot(t, repo, productID, locationID, 3, day(4))

		assert.Equal(t, created.ID, merged.ID)
		assert.Equal(t, int64(8), merged.Quantity)
		require.NotNil(t, merged.ExpiryDate)
		assert.True(t, day(4).Equal(*merged.ExpiryDate))

		again := receiveLot(t, repo, productID, locationID, 1, day(20))
		require.NotNil(t, again.ExpiryDate)
		assert.True(t, day(4).Equal(*again.ExpiryDate))
		assert.Equal(t, int64(9), again.Quantity)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		_, err := repo.Receive(ctx, inventory.ReceiveRequest{
			ProductID:  uuid.New(),
			LocationID: uuid.New(),
			Quantity:   0,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)
	})
}

func TestGormStockLotRepository_LotsForProduct(t *testing.T) {
	repo := NewGormStockLotRepository(newSQLiteDB(t))
	productID := uuid.New()

	noExpiry := receiveLot(t, repo, productID, uuid.New(), 4, nil)
	late := receiveLot(t, repo, productID, uuid.New(), 4, day(9))
	early := receiveLot(t, repo, productID, uuid.New(), 4, day(2))
	sameDay := receiveLot(t, repo, productID, uuid.New(), 4, day(2))
	receiveLot(t, repo, uuid.New(), uuid.New(), 4, day(1))

	lots, err := repo.LotsForProduct(context.Background(), productID)
	require.NoError(t, err)

	ids := make([]uuid.UUID, len(lots))
	for i, l := range lots {
		ids[i] = l.ID
	}
	assert.Equal(t, []uuid.UUID{early.ID, sameDay.ID, late.ID, noExpiry.ID}, ids)
}

func TestGormStockLotRepository_AdjustLot(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the delta", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		lot := receiveLot(t, repo, uuid.New(), uuid.New(), 5, nil)

		updated, err := repo.AdjustLot(ctx, lot.ID, -5)
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated.Quantity)

		updated, err = repo.AdjustLot(ctx, lot.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Quantity)
	})

	t.Run("refuses to go negative and leaves the lot unchanged", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		lot := receiveLot(t, repo, uuid.New(), uuid.New(), 3, nil)

		_, err := repo.AdjustLot(ctx, lot.ID, -4)
		var negErr *inventory.NegativeStockError
		require.ErrorAs(t, err, &negErr)
		assert.Equal(t, int64(3), negErr.Current)
		assert.ErrorIs(t, err, shared.ErrNegativeStock)

		found, err := repo.FindLot(ctx, lot.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), found.Quantity)
	})

	t.Run("unknown lot", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		_, err := repo.AdjustLot(ctx, uuid.New(), 1)
		assert.ErrorIs(t, err, inventory.ErrLotNotFound)
	})
}

func TestGormStockLotRepository_RemoveLot(t *testing.T) {
	ctx := context.Background()

	t.Run("only empty lots can be removed", func(t *testing.T) {
		repo := NewGormStockLotRepository(newSQLiteDB(t))
		productID, locationID := uuid.New(), uuid.New()
		lot := receiveLot(t, repo, productID, locationID, 3, day(1))

		err := repo.RemoveLot(ctx, lot.ID)
		var notEmpty *inventory.LotNotEmptyError
		require.ErrorAs(t, err, &notEmpty)
		assert.Equal(t, int64(3), notEmpty.Quantity)
		assert.ErrorIs(t, err, shared.ErrInvalidState)

		_, err = repo.AdjustLot(ctx, lot.ID, -3)
		require.NoError(t, err)
		require.NoError(t, repo.RemoveLot(ctx, lot.ID))

		_, err = repo.FindLot(ctx, lot.ID)
		assert.ErrorIs(t, err, inventory.ErrLotNotFound)
		assert.ErrorIs(t, repo.RemoveLot(ctx, lot.ID), inventory.ErrLotNotFound)

		again := receiveLot(t, repo, productID, locationID, 2, nil)
		assert.NotEqual(t, lot.ID, again.ID)
	})

	t.Run("restore after removal lands at the fallback location", func(t *testing.T) {
		db := newSQLiteDB(t)
		repo := NewGormStockLotRepository(db)
		productID, fallback := uuid.New(), uuid.New()
		lot := receiveLot(t, repo, productID, uuid.New(), 4, day(2))
		kept := receiveLot(t, repo, productID, uuid.New(), 5, nil)

		allocator := inventory.NewStockAllocator(NewGormLedgerScope(db), inventory.WithFallbackLocation(fallback))
		result, err := allocator.Allocate(ctx, productID, 6)
		require.NoError(t, err)
		require.NoError(t, repo.RemoveLot(ctx, lot.ID))

		require.NoError(t, allocator.Restore(ctx, result))

		lots, err := repo.LotsForProduct(ctx, productID)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		byLocation := map[uuid.UUID]inventory.StockLot{}
		for _, l := range lots {
			byLocation[l.LocationID] = l
		}
		assert.Equal(t, int64(5), byLocation[kept.LocationID].Quantity)
		restored, ok := byLocation[fallback]
		require.True(t, ok)
		assert.Equal(t, int64(4), restored.Quantity)
		assert.Nil(t, restored.ExpiryDate)
	})
}

func TestGormStockLotRepository_AvailableQuantity(t *testing.T) {
	ctx := context.Background()
	repo := NewGormStockLotRepository(newSQLiteDB(t))
	productID := uuid.New()

	qty, err := repo.AvailableQuantity(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, qty)

	receiveLot(t, repo, productID, uuid.New(), 4, day(1))
	drained := receiveLot(t, repo, productID, uuid.New(), 6, nil)
	_, err = repo.AdjustLot(ctx, drained.ID, -6)
	require.NoError(t, err)
	receiveLot(t, repo, productID, uuid.New(), 2, day(5))

	qty, err = repo.AvailableQuantity(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), qty)
}

func TestGormStockLotRepository_SQL(t *testing.T) {
	ctx := context.Background()

	t.Run("for update reads lock rows in consumption order", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		productID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_lots" WHERE product_id = \$1 ORDER BY expiry_date IS NULL, expiry_date ASC, sequence ASC FOR UPDATE`).
			WithArgs(productID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "location_id", "quantity", "sequence"}).
				AddRow(uuid.NewString(), productID.String(), uuid.NewString(), int64(4), int64(1)))

		lots, err := NewGormStockLotRepository(db.DB).ForUpdate().LotsForProduct(ctx, productID)
		require.NoError(t, err)
		require.Len(t, lots, 1)
		assert.Equal(t, int64(4), lots[0].Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adjust is a single conditional update", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		lotID := uuid.New()

		mock.ExpectExec(`UPDATE "stock_lots" SET .* WHERE id = \$\d+ AND quantity \+ \$\d+ >= 0`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stock_lots" WHERE id = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "location_id", "quantity", "sequence"}).
				AddRow(lotID.String(), uuid.NewString(), uuid.NewString(), int64(2), int64(1)))

		_, err := NewGormStockLotRepository(db.DB).AdjustLot(ctx, lotID, -5)
		var negErr *inventory.NegativeStockError
		require.ErrorAs(t, err, &negErr)
		assert.Equal(t, lotID, negErr.LotID)
		assert.Equal(t, int64(2), negErr.Current)
		assert.Equal(t, int64(-5), negErr.Delta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
