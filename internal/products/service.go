package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes catalog management operations.
type Service interface {
	RegisterProduct(ctx context.Context, input RegisterProductInput) (*ProductDTO, error)
	ChangeProductQuantity(ctx context.Context, model string, delta int, changeDate *types.Date) (int, error)
	SellProduct(ctx context.Context, model string, quantity int, sellingDate *types.Date) (int, error)
	GetProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error)
	GetAvailableProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error)
	DeleteProduct(ctx context.Context, model string) error
	DeleteAllProducts(ctx context.Context) error
}

// RegisterProductInput holds the validated payload to register a product.
type RegisterProductInput struct {
	Model        string
	Category     enums.ProductCategory
	Quantity     int
	Details      *string
	SellingPrice decimal.Decimal
	ArrivalDate  *types.Date
}

// ListProductsInput carries the raw listing query. Grouping selects which of
// Category or Model must be present.
type ListProductsInput struct {
	Grouping string
	Category string
	Model    string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo *Repository
	tx   txRunner
	now  func() time.Time
}

// NewService constructs a catalog service instance.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) today() types.Date {
	return types.NewDate(s.now())
}

func (s *service) RegisterProduct(ctx context.Context, input RegisterProductInput) (*ProductDTO, error) {
	input.Model = strings.TrimSpace(input.Model)
	if input.Model == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "model is required")
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category must be Smartphone, Laptop or Appliance")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.SellingPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selling price must be positive")
	}

	today := s.today()
	arrival := today
	if input.ArrivalDate != nil && !input.ArrivalDate.IsZero() {
		if input.ArrivalDate.After(today) {
			return nil, pkgerrors.New(pkgerrors.CodeDate, "arrival date cannot be in the future")
		}
		arrival = *input.ArrivalDate
	}

	product := &models.Product{
		Model:        input.Model,
		Category:     input.Category,
		Quantity:     input.Quantity,
		Details:      input.Details,
		SellingPrice: input.SellingPrice.Round(2),
		ArrivalDate:  types.DatePtr(arrival),
	}
	if err := s.repo.Register(ctx, product); err != nil {
		return nil, err
	}
	dto := NewProductDTO(*product)
	return &dto, nil
}

// ChangeProductQuantity adds delta units of newly arrived stock and returns the
// resulting quantity. An empty changeDate keeps the current arrival date.
func (s *service) ChangeProductQuantity(ctx context.Context, model string, delta int, changeDate *types.Date) (int, error) {
	if delta <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var quantity int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LookupForUpdate(ctx, model)
		if err != nil {
			return err
		}

		var arrival *types.Date
		if changeDate != nil && !changeDate.IsZero() {
			if err := s.checkEventDate(*changeDate, current.ArrivalDate); err != nil {
				return err
			}
			arrival = changeDate
		}

		if err := repo.AddStock(ctx, model, delta, arrival); err != nil {
			return err
		}
		quantity = current.Quantity + delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// SellProduct removes quantity units outside of a cart and returns the
// remaining stock. An empty sellingDate means today.
func (s *service) SellProduct(ctx context.Context, model string, quantity int, sellingDate *types.Date) (int, error) {
	if quantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var remaining int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LookupForUpdate(ctx, model)
		if err != nil {
			return err
		}

		sold := s.today()
		if sellingDate != nil && !sellingDate.IsZero() {
			if err := s.checkEventDate(*sellingDate, current.ArrivalDate); err != nil {
				return err
			}
			sold = *sellingDate
		}

		if current.Quantity == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyStock, "product is sold out")
		}
		if current.Quantity < quantity {
			return pkgerrors.New(pkgerrors.CodeLowStock, "not enough stock").
				WithDetails(map[string]any{"model": model, "available": current.Quantity, "requested": quantity})
		}
		if err := repo.DecrementStock(ctx, model, quantity, sold); err != nil {
			if errors.Is(err, ErrStockConflict) {
				return pkgerrors.New(pkgerrors.CodeLowStock, "not enough stock")
			}
			return err
		}
		remaining = current.Quantity - quantity
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// checkEventDate rejects dates in the future or before the product arrived.
func (s *service) checkEventDate(date types.Date, arrival *types.Date) error {
	if date.After(s.today()) {
		return pkgerrors.New(pkgerrors.CodeDate, "date cannot be in the future")
	}
	if arrival != nil && !arrival.IsZero() && date.Before(*arrival) {
		return pkgerrors.New(pkgerrors.CodeDate, "date cannot precede the arrival date")
	}
	return nil
}

func (s *service) GetProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error) {
	return s.list(ctx, input, false)
}

func (s *service) GetAvailableProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error) {
	return s.list(ctx, input, true)
}

func (s *service) list(ctx context.Context, input ListProductsInput, availableOnly bool) ([]ProductDTO, error) {
	filter, err := buildListFilter(input)
	if err != nil {
		return nil, err
	}
	filter.AvailableOnly = availableOnly

	if filter.Model != "" {
		// an unknown model is an error, an out-of-stock one is just filtered
		if _, err := s.repo.Lookup(ctx, filter.Model); err != nil {
			return nil, err
		}
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newProductDTOs(rows), nil
}

func buildListFilter(input ListProductsInput) (ListFilter, error) {
	grouping, err := enums.ParseProductGrouping(strings.TrimSpace(input.Grouping))
	if err != nil {
		return ListFilter{}, pkgerrors.New(pkgerrors.CodeWrongParameter, "grouping must be empty, category or model")
	}
	category := strings.TrimSpace(input.Category)
	model := strings.TrimSpace(input.Model)

	switch grouping {
	case enums.ProductGroupingCategory:
		if category == "" || model != "" {
			return ListFilter{}, pkgerrors.New(pkgerrors.CodeWrongParameter, "category grouping requires only a category")
		}
		parsed, err := enums.ParseProductCategory(category)
		if err != nil {
			return ListFilter{}, pkgerrors.New(pkgerrors.CodeWrongParameter, "unknown category")
		}
		return ListFilter{Category: parsed}, nil
	case enums.ProductGroupingModel:
		if model == "" || category != "" {
			return ListFilter{}, pkgerrors.New(pkgerrors.CodeWrongParameter, "model grouping requires only a model")
		}
		return ListFilter{Model: model}, nil
	default:
		if category != "" || model != "" {
			return ListFilter{}, pkgerrors.New(pkgerrors.CodeWrongParameter, "category and model require a grouping")
		}
		return ListFilter{}, nil
	}
}

func (s *service) DeleteProduct(ctx context.Context, model string) error {
	return s.repo.Delete(ctx, model)
}

func (s *service) DeleteAllProducts(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}
