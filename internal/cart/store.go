package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// LineStock pairs a cart line with the live stock of its product. Stock is nil
// when the product no longer exists.
type LineStock struct {
	Model     string          `gorm:"column:model"`
	Quantity  int             `gorm:"column:quantity"`
	Category  string          `gorm:"column:category"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price"`
	Stock     *int            `gorm:"column:stock"`
}

// CartRow is one cart header joined with at most one of its lines. Carts
// without lines produce a single row with nil line columns.
type CartRow struct {
	CartID      int64               `gorm:"column:cart_id"`
	Owner       string              `gorm:"column:owner"`
	Paid        bool                `gorm:"column:paid"`
	PaymentDate *types.Date         `gorm:"column:payment_date"`
	Total       decimal.Decimal     `gorm:"column:total"`
	Model       *string             `gorm:"column:model"`
	Quantity    *int                `gorm:"column:quantity"`
	Category    *string             `gorm:"column:category"`
	UnitPrice   decimal.NullDecimal `gorm:"column:unit_price"`
}

const cartRowsSelect = `
SELECT c.id AS cart_id,
       c.owner,
       c.paid,
       c.payment_date,
       c.total,
       l.model,
       l.quantity,
       l.category,
       l.unit_price
FROM carts c
LEFT JOIN cart_lines l ON l.cart_id = c.id
`

// Store is the gorm-backed CartStore.
type Store struct {
	db *gorm.DB
}

// NewStore binds the store to the provided GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx scopes the store to the provided transaction.
func (s *Store) WithTx(tx *gorm.DB) CartStore {
	if tx == nil {
		return s
	}
	return &Store{db: tx}
}

// FindUnpaidCart returns the owner's open cart, or nil when there is none.
func (s *Store) FindUnpaidCart(ctx context.Context, owner string) (*models.Cart, error) {
	return s.FindCart(ctx, owner, false)
}

// FindUnpaidCartForUpdate is FindUnpaidCart with a row lock held until the transaction ends.
func (s *Store) FindUnpaidCartForUpdate(ctx context.Context, owner string) (*models.Cart, error) {
	return s.findCart(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), owner, false)
}

// FindCart returns the owner's most recent cart in the given paid state, or nil.
func (s *Store) FindCart(ctx context.Context, owner string, paid bool) (*models.Cart, error) {
	return s.findCart(s.db.WithContext(ctx), owner, paid)
}

func (s *Store) findCart(q *gorm.DB, owner string, paid bool) (*models.Cart, error) {
	var cart models.Cart
	err := q.Where("owner = ? AND paid = ?", owner, paid).Order("id DESC").Take(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Storage(err, "load cart")
	}
	return &cart, nil
}

// CreateCart opens an empty unpaid cart for owner.
func (s *Store) CreateCart(ctx context.Context, owner string) (*models.Cart, error) {
	cart := &models.Cart{Owner: owner, Total: decimal.Zero}
	if err := s.db.WithContext(ctx).Create(cart).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_carts_owner_unpaid") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an unpaid cart already exists for this owner")
		}
		return nil, pkgerrors.Storage(err, "create cart")
	}
	return cart, nil
}

// FindLine returns the line for model in the cart, or nil.
func (s *Store) FindLine(ctx context.Context, cartID int64, model string) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.WithContext(ctx).Where("cart_id = ? AND model = ?", cartID, model).Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Storage(err, "load cart line")
	}
	return &line, nil
}

func (s *Store) InsertLine(ctx context.Context, line *models.CartLine) error {
	if err := s.db.WithContext(ctx).Create(line).Error; err != nil {
		return pkgerrors.Storage(err, "insert cart line")
	}
	return nil
}

// UpdateLineQuantity shifts a line's quantity by delta. The result must stay positive.
func (s *Store) UpdateLineQuantity(ctx context.Context, cartID int64, model string, delta int) error {
	res := s.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("cart_id = ? AND model = ? AND quantity + ? > 0", cartID, model, delta).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "update cart line")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeProductNotInCart, "product not in cart")
	}
	return nil
}

func (s *Store) DeleteLine(ctx context.Context, cartID int64, model string) error {
	res := s.db.WithContext(ctx).Where("cart_id = ? AND model = ?", cartID, model).Delete(&models.CartLine{})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "delete cart line")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeProductNotInCart, "product not in cart")
	}
	return nil
}

func (s *Store) CountLines(ctx context.Context, cartID int64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.CartLine{}).Where("cart_id = ?", cartID).Count(&n).Error; err != nil {
		return 0, pkgerrors.Storage(err, "count cart lines")
	}
	return n, nil
}

// AdjustTotal adds delta to an unpaid cart's stored total.
func (s *Store) AdjustTotal(ctx context.Context, cartID int64, delta decimal.Decimal) error {
	res := s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND paid = ?", cartID, false).
		Updates(map[string]any{
			"total":      gorm.Expr("ROUND(total + ?, 2)", delta.Round(2)),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "adjust cart total")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeCartNotFound, "unpaid cart not found")
	}
	return nil
}

// MarkPaid flips an unpaid cart to paid and stamps the payment date.
func (s *Store) MarkPaid(ctx context.Context, cartID int64, paymentDate types.Date) error {
	res := s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND paid = ?", cartID, false).
		Updates(map[string]any{
			"paid":         true,
			"payment_date": paymentDate,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "mark cart paid")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeCartNotFound, "unpaid cart not found")
	}
	return nil
}

// DeleteUnpaidCart removes the owner's open cart and its lines. It reports
// whether a cart existed.
func (s *Store) DeleteUnpaidCart(ctx context.Context, owner string) (bool, error) {
	cart, err := s.FindUnpaidCartForUpdate(ctx, owner)
	if err != nil || cart == nil {
		return false, err
	}
	q := s.db.WithContext(ctx)
	if err := q.Where("cart_id = ?", cart.ID).Delete(&models.CartLine{}).Error; err != nil {
		return false, pkgerrors.Storage(err, "delete cart lines")
	}
	if err := q.Where("id = ?", cart.ID).Delete(&models.Cart{}).Error; err != nil {
		return false, pkgerrors.Storage(err, "delete cart")
	}
	return true, nil
}

// ListLines returns the cart's lines in insertion order.
func (s *Store) ListLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("id ASC").Find(&lines).Error; err != nil {
		return nil, pkgerrors.Storage(err, "list cart lines")
	}
	return lines, nil
}

// ListLinesWithStock returns the cart's lines joined with current product stock.
func (s *Store) ListLinesWithStock(ctx context.Context, cartID int64) ([]LineStock, error) {
	var rows []LineStock
	err := s.db.WithContext(ctx).Raw(`
SELECT l.model, l.quantity, l.category, l.unit_price, p.quantity AS stock
FROM cart_lines l
LEFT JOIN products p ON p.model = l.model
WHERE l.cart_id = ?
ORDER BY l.id ASC`, cartID).Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Storage(err, "list cart lines with stock")
	}
	return rows, nil
}

func (s *Store) ListUnpaidRows(ctx context.Context, owner string) ([]CartRow, error) {
	return s.listRows(ctx, "WHERE c.owner = ? AND c.paid = ?", owner, false)
}

func (s *Store) ListPaidRows(ctx context.Context, owner string) ([]CartRow, error) {
	return s.listRows(ctx, "WHERE c.owner = ? AND c.paid = ?", owner, true)
}

func (s *Store) ListAllPaidRows(ctx context.Context) ([]CartRow, error) {
	return s.listRows(ctx, "WHERE c.paid = ?", true)
}

func (s *Store) listRows(ctx context.Context, where string, args ...any) ([]CartRow, error) {
	var rows []CartRow
	query := cartRowsSelect + where + "\nORDER BY c.owner ASC, c.id ASC, l.id ASC"
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Storage(err, "list cart rows")
	}
	return rows, nil
}

// DeleteAll removes every cart and line.
func (s *Store) DeleteAll(ctx context.Context) error {
	q := s.db.WithContext(ctx)
	if err := q.Where("1 = 1").Delete(&models.CartLine{}).Error; err != nil {
		return pkgerrors.Storage(err, "delete cart lines")
	}
	if err := q.Where("1 = 1").Delete(&models.Cart{}).Error; err != nil {
		return pkgerrors.Storage(err, "delete carts")
	}
	return nil
}
