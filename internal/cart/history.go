package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Snapshot is a read-only view of a cart and its lines.
type Snapshot struct {
	ID          int64
	Owner       string
	Paid        bool
	PaymentDate *types.Date
	Total       decimal.Decimal
	Lines       []LineSnapshot
}

// LineSnapshot is one line of a Snapshot with the category and price captured on first add.
type LineSnapshot struct {
	Model     string
	Quantity  int
	Category  string
	UnitPrice decimal.Decimal
}

// emptySnapshot is the shape returned for an owner without an unpaid cart.
func emptySnapshot(owner string) *Snapshot {
	return &Snapshot{Owner: owner, Total: decimal.Zero, Lines: []LineSnapshot{}}
}

// foldCartRows groups joined cart rows into snapshots. Rows must arrive ordered
// by cart; output order follows the first appearance of each cart id.
func foldCartRows(rows []CartRow) []Snapshot {
	if len(rows) == 0 {
		return []Snapshot{}
	}

	arena := make([]Snapshot, 0, len(rows))
	index := make(map[int64]int, len(rows))

	for _, row := range rows {
		pos, ok := index[row.CartID]
		if !ok {
			arena = append(arena, Snapshot{
				ID:          row.CartID,
				Owner:       row.Owner,
				Paid:        row.Paid,
				PaymentDate: row.PaymentDate,
				Total:       row.Total,
				Lines:       []LineSnapshot{},
			})
			pos = len(arena) - 1
			index[row.CartID] = pos
		}

		if row.Model == nil {
			continue
		}
		line := LineSnapshot{Model: *row.Model}
		if row.Quantity != nil {
			line.Quantity = *row.Quantity
		}
		if row.Category != nil {
			line.Category = *row.Category
		}
		if row.UnitPrice.Valid {
			line.UnitPrice = row.UnitPrice.Decimal
		}
		arena[pos].Lines = append(arena[pos].Lines, line)
	}

	return arena
}
