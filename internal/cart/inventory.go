package cart

import (
	"gorm.io/gorm"

	product "github.com/angelmondragon/storefront-backend/internal/products"
)

type productInventory struct {
	*product.Repository
}

// NewInventory adapts the product repository to the engine's inventory surface.
func NewInventory(repo *product.Repository) InventoryStore {
	return productInventory{Repository: repo}
}

func (p productInventory) WithTx(tx *gorm.DB) InventoryStore {
	return productInventory{Repository: p.Repository.WithTx(tx)}
}
