package cart

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartStore is the row-level persistence surface used by the lifecycle engine.
// It enforces no cross-record invariants.
type CartStore interface {
	WithTx(tx *gorm.DB) CartStore
	FindUnpaidCart(ctx context.Context, owner string) (*models.Cart, error)
	FindUnpaidCartForUpdate(ctx context.Context, owner string) (*models.Cart, error)
	FindCart(ctx context.Context, owner string, paid bool) (*models.Cart, error)
	CreateCart(ctx context.Context, owner string) (*models.Cart, error)
	FindLine(ctx context.Context, cartID int64, model string) (*models.CartLine, error)
	InsertLine(ctx context.Context, line *models.CartLine) error
	UpdateLineQuantity(ctx context.Context, cartID int64, model string, delta int) error
	DeleteLine(ctx context.Context, cartID int64, model string) error
	CountLines(ctx context.Context, cartID int64) (int64, error)
	AdjustTotal(ctx context.Context, cartID int64, delta decimal.Decimal) error
	MarkPaid(ctx context.Context, cartID int64, paymentDate types.Date) error
	DeleteUnpaidCart(ctx context.Context, owner string) (bool, error)
	ListLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	ListLinesWithStock(ctx context.Context, cartID int64) ([]LineStock, error)
	ListUnpaidRows(ctx context.Context, owner string) ([]CartRow, error)
	ListPaidRows(ctx context.Context, owner string) ([]CartRow, error)
	ListAllPaidRows(ctx context.Context) ([]CartRow, error)
	DeleteAll(ctx context.Context) error
}

// InventoryStore is the slice of the product store the engine reads and decrements.
type InventoryStore interface {
	WithTx(tx *gorm.DB) InventoryStore
	Lookup(ctx context.Context, model string) (*models.Product, error)
	DecrementStock(ctx context.Context, model string, amount int, sellingDate types.Date) error
}

// OwnerLocker serializes mutations of one owner's cart. Different owners never
// contend.
type OwnerLocker interface {
	Lock(ctx context.Context, owner string) (unlock func(), err error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
