package cart

import (
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartDTO is the wire shape of a cart snapshot.
type CartDTO struct {
	ID          int64         `json:"id,omitempty"`
	Customer    string        `json:"customer"`
	Paid        bool          `json:"paid"`
	PaymentDate *types.Date   `json:"payment_date"`
	Total       string        `json:"total"`
	Products    []CartLineDTO `json:"products"`
}

type CartLineDTO struct {
	Model    string `json:"model"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
	Price    string `json:"price"`
}

func NewCartDTO(s Snapshot) CartDTO {
	out := CartDTO{
		ID:          s.ID,
		Customer:    s.Owner,
		Paid:        s.Paid,
		PaymentDate: s.PaymentDate,
		Total:       s.Total.StringFixed(2),
		Products:    make([]CartLineDTO, 0, len(s.Lines)),
	}
	for _, line := range s.Lines {
		out.Products = append(out.Products, CartLineDTO{
			Model:    line.Model,
			Quantity: line.Quantity,
			Category: line.Category,
			Price:    line.UnitPrice.StringFixed(2),
		})
	}
	return out
}

// NewCartDTOs maps a list of snapshots, never returning nil.
func NewCartDTOs(snapshots []Snapshot) []CartDTO {
	out := make([]CartDTO, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, NewCartDTO(s))
	}
	return out
}
