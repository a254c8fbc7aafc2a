package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Product is a catalog entry keyed by its model name.
type Product struct {
	Model        string                `gorm:"column:model;primaryKey"`
	Category     enums.ProductCategory `gorm:"column:category;not null"`
	Quantity     int                   `gorm:"column:quantity;not null;default:0"`
	Details      *string               `gorm:"column:details"`
	SellingPrice decimal.Decimal       `gorm:"column:selling_price;type:numeric(12,2);not null"`
	ArrivalDate  *types.Date           `gorm:"column:arrival_date;type:date"`
	SellingDate  *types.Date           `gorm:"column:selling_date;type:date"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
