package product

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	Model        string      `json:"model"`
	Category     string      `json:"category"`
	Quantity     int         `json:"quantity"`
	Details      *string     `json:"details,omitempty"`
	SellingPrice string      `json:"selling_price"`
	ArrivalDate  *types.Date `json:"arrival_date,omitempty"`
	SellingDate  *types.Date `json:"selling_date,omitempty"`
}

// NewProductDTO maps a model row to its wire shape.
func NewProductDTO(p models.Product) ProductDTO {
	return ProductDTO{
		Model:        p.Model,
		Category:     p.Category.String(),
		Quantity:     p.Quantity,
		Details:      p.Details,
		SellingPrice: p.SellingPrice.StringFixed(2),
		ArrivalDate:  p.ArrivalDate,
		SellingDate:  p.SellingDate,
	}
}

func newProductDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewProductDTO(row))
	}
	return out
}
