package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CartLine is one product entry in a cart. Category and unit price are captured
// when the line is first created.
type CartLine struct {
	ID        int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	CartID    int64                 `gorm:"column:cart_id;not null;uniqueIndex:ux_cart_lines_cart_model,priority:1"`
	Model     string                `gorm:"column:model;not null;uniqueIndex:ux_cart_lines_cart_model,priority:2"`
	Quantity  int                   `gorm:"column:quantity;not null"`
	Category  enums.ProductCategory `gorm:"column:category;not null"`
	UnitPrice decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}
