package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// consumptionOrder sorts lots the way inventory.ConsumesBefore does
const consumptionOrder = "expiry_date IS NULL, expiry_date ASC, sequence ASC"

// GormStockLotRepository implements inventory.StockLedger using GORM
type GormStockLotRepository struct {
	db        *gorm.DB
	forUpdate bool
}

// NewGormStockLotRepository creates a new GormStockLotRepository
func NewGormStockLotRepository(db *gorm.DB) *GormStockLotRepository {
	return &GormStockLotRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormStockLotRepository) WithTx(tx *gorm.DB) *GormStockLotRepository {
	return &GormStockLotRepository{db: tx, forUpdate: r.forUpdate}
}

// ForUpdate returns a repository whose reads take row locks (SELECT ... FOR UPDATE).
// Only meaningful inside a transaction.
func (r *GormStockLotRepository) ForUpdate() *GormStockLotRepository {
	return &GormStockLotRepository{db: r.db, forUpdate: true}
}

func (r *GormStockLotRepository) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.StockLotModel{})
	if r.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// LotsForProduct returns all lots of a product in consumption order
func (r *GormStockLotRepository) LotsForProduct(ctx context.Context, productID uuid.UUID) ([]inventory.StockLot, error) {
	var rows []models.StockLotModel
	if err := r.query(ctx).
		Where("product_id = ?", productID).
		Order(consumptionOrder).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	lots := make([]inventory.StockLot, len(rows))
	for i := range rows {
		lots[i] = *rows[i].ToDomain()
	}
	return lots, nil
}

// FindLot finds a lot by its ID
func (r *GormStockLotRepository) FindLot(ctx context.Context, lotID uuid.UUID) (*inventory.StockLot, error) {
	var row models.StockLotModel
	if err := r.query(ctx).Where("id = ?", lotID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrLotNotFound
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

// AdjustLot changes a lot's quantity with a single conditional UPDATE, so the
// non-negative guard holds even without a surrounding lock.
func (r *GormStockLotRepository) AdjustLot(ctx context.Context, lotID uuid.UUID, delta int64) (*inventory.StockLot, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockLotModel{}).
		Where("id = ? AND quantity + ? >= 0", lotID, delta).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	lot, err := r.FindLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, &inventory.NegativeStockError{LotID: lotID, Current: lot.Quantity, Delta: delta}
	}
	return lot, nil
}

// Receive adds stock to the (product, location) lot, creating it when absent
func (r *GormStockLotRepository) Receive(ctx context.Context, req inventory.ReceiveRequest) (*inventory.StockLot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var existing models.StockLotModel
	err := r.query(ctx).
		Where("product_id = ? AND location_id = ?", req.ProductID, req.LocationID).
		First(&existing).Error
	switch {
	case err == nil:
		lot := existing.ToDomain()
		lot.MergeExpiry(req.ExpiryDate)
		if err := r.db.WithContext(ctx).
			Model(&models.StockLotModel{}).
			Where("id = ?", lot.ID).
			Updates(map[string]any{
				"quantity":    gorm.Expr("quantity + ?", req.Quantity),
				"expiry_date": lot.ExpiryDate,
				"updated_at":  time.Now(),
			}).Error; err != nil {
			return nil, err
		}
		return r.FindLot(ctx, lot.ID)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	lot, err := inventory.NewStockLot(req.ProductID, req.LocationID, req.Quantity, req.ExpiryDate, req.UnitCost)
	if err != nil {
		return nil, err
	}
	seq, err := r.nextSequence(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	lot.Sequence = seq

	if err := r.db.WithContext(ctx).Create(models.StockLotModelFromDomain(lot)).Error; err != nil {
		return nil, fmt.Errorf("create stock lot: %w", err)
	}
	return lot, nil
}

// RemoveLot hard-deletes an empty lot. The quantity guard is part of the
// DELETE so a concurrent receipt cannot be lost.
func (r *GormStockLotRepository) RemoveLot(ctx context.Context, lotID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND quantity = 0", lotID).
		Delete(&models.StockLotModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	lot, err := r.FindLot(ctx, lotID)
	if err != nil {
		return err
	}
	return &inventory.LotNotEmptyError{LotID: lotID, Quantity: lot.Quantity}
}

// AvailableQuantity sums the positive lot quantities of a product
func (r *GormStockLotRepository) AvailableQuantity(ctx context.Context, productID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockLotModel{}).
		Where("product_id = ? AND quantity > 0", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *GormStockLotRepository) nextSequence(ctx context.Context, productID uuid.UUID) (int64, error) {
	var maxSeq int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockLotModel{}).
		Where("product_id = ?", productID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

var _ inventory.StockLedger = (*GormStockLotRepository)(nil)
