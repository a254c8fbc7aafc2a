package product

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStockConflict is returned by DecrementStock when no row satisfied the
// stock guard: the product is gone or holds fewer units than requested.
var ErrStockConflict = errors.New("product stock guard rejected decrement")

// ListFilter narrows product listings. Zero values match everything.
type ListFilter struct {
	Category      enums.ProductCategory
	Model         string
	AvailableOnly bool
}

// Repository is the inventory store. Every method is bindable to a transaction.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Lookup loads a product by model.
func (r *Repository) Lookup(ctx context.Context, model string) (*models.Product, error) {
	return r.lookup(ctx, r.db.WithContext(ctx), model)
}

// LookupForUpdate loads a product and row-locks it for the rest of the transaction.
func (r *Repository) LookupForUpdate(ctx context.Context, model string) (*models.Product, error) {
	return r.lookup(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), model)
}

func (r *Repository) lookup(_ context.Context, q *gorm.DB, model string) (*models.Product, error) {
	var product models.Product
	if err := q.Where("model = ?", model).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Storage(err, "load product")
	}
	return &product, nil
}

// Register inserts a new product.
func (r *Repository) Register(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodeProductAlreadyExists, "product already exists")
		}
		return pkgerrors.Storage(err, "insert product")
	}
	return nil
}

// DecrementStock removes amount units with a single guarded update and stamps
// the selling date. It never clamps; a failed guard yields ErrStockConflict.
func (r *Repository) DecrementStock(ctx context.Context, model string, amount int, sellingDate types.Date) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("model = ? AND quantity >= ?", model, amount).
		Updates(map[string]any{
			"quantity":     gorm.Expr("quantity - ?", amount),
			"selling_date": sellingDate,
		})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return ErrStockConflict
	}
	return nil
}

// AddStock adds delta units and records the arrival date of the new stock.
func (r *Repository) AddStock(ctx context.Context, model string, delta int, arrivalDate *types.Date) error {
	updates := map[string]any{"quantity": gorm.Expr("quantity + ?", delta)}
	if arrivalDate != nil {
		updates["arrival_date"] = *arrivalDate
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("model = ?", model).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "add stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
	}
	return nil
}

// List returns products matching the filter ordered by model.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if filter.AvailableOnly {
		q = q.Where("quantity > 0")
	}

	var products []models.Product
	if err := q.Order("model ASC").Find(&products).Error; err != nil {
		return nil, pkgerrors.Storage(err, "list products")
	}
	return products, nil
}

// Delete removes a single product.
func (r *Repository) Delete(ctx context.Context, model string) error {
	res := r.db.WithContext(ctx).Where("model = ?", model).Delete(&models.Product{})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "delete product")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
	}
	return nil
}

// DeleteAll removes every product.
func (r *Repository) DeleteAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Product{}).Error; err != nil {
		return pkgerrors.Storage(err, "delete products")
	}
	return nil
}
