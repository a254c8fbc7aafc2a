package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Cart is an owner's basket. Unpaid carts are mutable; paid carts are history.
// An owner holds at most one unpaid cart (ux_carts_owner_unpaid).
type Cart struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Owner       string          `gorm:"column:owner;not null;index:idx_carts_owner_paid,priority:1;uniqueIndex:ux_carts_owner_unpaid,where:paid = false"`
	Paid        bool            `gorm:"column:paid;not null;index:idx_carts_owner_paid,priority:2"`
	PaymentDate *types.Date     `gorm:"column:payment_date;type:date"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Lines       []CartLine      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
