package models

import (
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLotModel is the persistence model for the StockLot entity.
type StockLotModel struct {
	BaseModel
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_lots_product_location,priority:1;index:idx_stock_lots_consumption,priority:1"`
	LocationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_lots_product_location,priority:2"`
	Quantity   int64           `gorm:"not null;default:0;check:chk_stock_lots_quantity_non_negative,quantity >= 0"`
	ExpiryDate *time.Time      `gorm:"type:date;index:idx_stock_lots_consumption,priority:2"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Sequence   int64           `gorm:"not null;index:idx_stock_lots_consumption,priority:3"`
}

// TableName returns the table name for GORM
func (StockLotModel) TableName() string {
	return "stock_lots"
}

// ToDomain converts the persistence model to a domain StockLot entity.
func (m *StockLotModel) ToDomain() *inventory.StockLot {
	lot := &inventory.StockLot{
		BaseEntity: m.BaseModel.ToDomain(),
		ProductID:  m.ProductID,
		LocationID: m.LocationID,
		Quantity:   m.Quantity,
		UnitCost:   m.UnitCost,
		Sequence:   m.Sequence,
	}
	if m.ExpiryDate != nil {
		d := m.ExpiryDate.UTC()
		lot.ExpiryDate = &d
	}
	return lot
}

// FromDomain populates the persistence model from a domain StockLot entity.
func (m *StockLotModel) FromDomain(l *inventory.StockLot) {
	m.FromDomainBaseEntity(l.BaseEntity)
	m.ProductID = l.ProductID
	m.LocationID = l.LocationID
	m.Quantity = l.Quantity
	m.ExpiryDate = l.ExpiryDate
	m.UnitCost = l.UnitCost
	m.Sequence = l.Sequence
}

// StockLotModelFromDomain creates a new persistence model from a domain StockLot entity.
func StockLotModelFromDomain(l *inventory.StockLot) *StockLotModel {
	m := &StockLotModel{}
	m.FromDomain(l)
	return m
}
