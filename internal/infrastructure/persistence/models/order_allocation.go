package models

import (
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
)

// OrderAllocationModel is the persistence model for the OrderAllocation aggregate.
// Results are written when the order is allocated and read back on release;
// a line release only flips its Released flag, so they are kept as a JSON
// document rather than a child table.
type OrderAllocationModel struct {
	BaseModel
	OrderID     uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex"`
	Status      string                       `gorm:"type:varchar(20);not null;index"`
	Results     []inventory.AllocationResult `gorm:"type:jsonb;serializer:json"`
	AllocatedAt *time.Time
	ReleasedAt  *time.Time
}

// TableName returns the table name for GORM
func (OrderAllocationModel) TableName() string {
	return "order_allocations"
}

// ToDomain converts the persistence model to a domain OrderAllocation.
func (m *OrderAllocationModel) ToDomain() *inventory.OrderAllocation {
	return &inventory.OrderAllocation{
		BaseEntity:  m.BaseModel.ToDomain(),
		OrderID:     m.OrderID,
		Status:      inventory.AllocationStatus(m.Status),
		Results:     m.Results,
		AllocatedAt: m.AllocatedAt,
		ReleasedAt:  m.ReleasedAt,
	}
}

// OrderAllocationModelFromDomain creates a new persistence model from a domain OrderAllocation.
func OrderAllocationModelFromDomain(o *inventory.OrderAllocation) *OrderAllocationModel {
	m := &OrderAllocationModel{
		OrderID:     o.OrderID,
		Status:      string(o.Status),
		Results:     o.Results,
		AllocatedAt: o.AllocatedAt,
		ReleasedAt:  o.ReleasedAt,
	}
	m.FromDomainBaseEntity(o.BaseEntity)
	return m
}
