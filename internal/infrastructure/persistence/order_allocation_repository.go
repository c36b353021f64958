package persistence

import (
	"context"
	"errors"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderAllocationRepository implements inventory.OrderAllocationRepository using GORM
type GormOrderAllocationRepository struct {
	db        *gorm.DB
	forUpdate bool
}

// NewGormOrderAllocationRepository creates a new GormOrderAllocationRepository
func NewGormOrderAllocationRepository(db *gorm.DB) *GormOrderAllocationRepository {
	return &GormOrderAllocationRepository{db: db}
}

// ForUpdate returns a repository whose reads lock the allocation row
func (r *GormOrderAllocationRepository) ForUpdate() *GormOrderAllocationRepository {
	return &GormOrderAllocationRepository{db: r.db, forUpdate: true}
}

// FindByOrderID finds the allocation recorded for an order
func (r *GormOrderAllocationRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*inventory.OrderAllocation, error) {
	q := r.db.WithContext(ctx)
	if r.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row models.OrderAllocationModel
	if err := q.Where("order_id = ?", orderID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrOrderAllocationNotFound
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

// Save inserts or updates the allocation
func (r *GormOrderAllocationRepository) Save(ctx context.Context, allocation *inventory.OrderAllocation) error {
	return r.db.WithContext(ctx).Save(models.OrderAllocationModelFromDomain(allocation)).Error
}

var _ inventory.OrderAllocationRepository = (*GormOrderAllocationRepository)(nil)
