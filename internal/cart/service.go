package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const tracerName = "github.com/angelmondragon/storefront-backend/internal/cart"

// Service drives the cart lifecycle: unpaid cart, paid history, checkout.
type Service interface {
	AddProduct(ctx context.Context, owner, model string) error
	RemoveProduct(ctx context.Context, owner, model string) error
	Checkout(ctx context.Context, owner string) (*Snapshot, error)
	ClearCart(ctx context.Context, owner string) error
	GetCurrentCart(ctx context.Context, owner string) (*Snapshot, error)
	GetPurchaseHistory(ctx context.Context, owner string) ([]Snapshot, error)
	GetAllCarts(ctx context.Context) ([]Snapshot, error)
	DeleteAllCarts(ctx context.Context) error
}

// ServiceParams wires the engine's collaborators. Metrics, Logger and Tracer are optional.
type ServiceParams struct {
	Store     CartStore
	Inventory InventoryStore
	Tx        txRunner
	Locker    OwnerLocker
	Metrics   *metrics.CartMetrics
	Logger    *logger.Logger
	Tracer    trace.Tracer
}

// Violation describes one line that cannot be fulfilled at checkout.
type Violation struct {
	Model     string         `json:"model"`
	Code      pkgerrors.Code `json:"code"`
	Requested int            `json:"requested"`
	Available int            `json:"available"`
}

type service struct {
	store     CartStore
	inventory InventoryStore
	tx        txRunner
	locker    OwnerLocker
	metrics   *metrics.CartMetrics
	logg      *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService constructs the cart lifecycle engine.
func NewService(p ServiceParams) (Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if p.Inventory == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Locker == nil {
		return nil, fmt.Errorf("owner locker required")
	}
	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &service{
		store:     p.Store,
		inventory: p.Inventory,
		tx:        p.Tx,
		locker:    p.Locker,
		metrics:   p.Metrics,
		logg:      p.Logger,
		tracer:    tracer,
		now:       time.Now,
	}, nil
}

func (s *service) today() types.Date {
	return types.NewDate(s.now())
}

func (s *service) AddProduct(ctx context.Context, owner, model string) error {
	return s.run(ctx, "add_product", owner, func(ctx context.Context) error {
		if err := requireOwnerAndModel(owner, model); err != nil {
			return err
		}
		return s.mutate(ctx, owner, func(ctx context.Context, store CartStore, inv InventoryStore) error {
			item, err := inv.Lookup(ctx, model)
			if err != nil {
				return err
			}
			if item.Quantity == 0 {
				return pkgerrors.New(pkgerrors.CodeEmptyStock, "product is out of stock").
					WithDetails(map[string]any{"model": model})
			}

			cart, err := store.FindUnpaidCartForUpdate(ctx, owner)
			if err != nil {
				return err
			}
			if cart == nil {
				if cart, err = store.CreateCart(ctx, owner); err != nil {
					return err
				}
			}

			line, err := store.FindLine(ctx, cart.ID, model)
			if err != nil {
				return err
			}
			if line == nil {
				err = store.InsertLine(ctx, &models.CartLine{
					CartID:    cart.ID,
					Model:     item.Model,
					Quantity:  1,
					Category:  item.Category,
					UnitPrice: item.SellingPrice,
				})
			} else {
				err = store.UpdateLineQuantity(ctx, cart.ID, model, 1)
			}
			if err != nil {
				return err
			}

			return store.AdjustTotal(ctx, cart.ID, item.SellingPrice)
		})
	})
}

func (s *service) RemoveProduct(ctx context.Context, owner, model string) error {
	return s.run(ctx, "remove_product", owner, func(ctx context.Context) error {
		if err := requireOwnerAndModel(owner, model); err != nil {
			return err
		}
		return s.mutate(ctx, owner, func(ctx context.Context, store CartStore, inv InventoryStore) error {
			item, err := inv.Lookup(ctx, model)
			if err != nil {
				return err
			}

			cart, err := store.FindUnpaidCartForUpdate(ctx, owner)
			if err != nil {
				return err
			}
			if cart == nil {
				return errCartNotFound()
			}
			count, err := store.CountLines(ctx, cart.ID)
			if err != nil {
				return err
			}
			if count == 0 {
				return errCartNotFound()
			}

			line, err := store.FindLine(ctx, cart.ID, model)
			if err != nil {
				return err
			}
			if line == nil {
				return pkgerrors.New(pkgerrors.CodeProductNotInCart, "product not in cart").
					WithDetails(map[string]any{"model": model})
			}
			if line.Quantity > 1 {
				err = store.UpdateLineQuantity(ctx, cart.ID, model, -1)
			} else {
				err = store.DeleteLine(ctx, cart.ID, model)
			}
			if err != nil {
				return err
			}

			return store.AdjustTotal(ctx, cart.ID, item.SellingPrice.Neg())
		})
	})
}

func (s *service) Checkout(ctx context.Context, owner string) (*Snapshot, error) {
	var snapshot *Snapshot
	var units int
	err := s.run(ctx, "checkout", owner, func(ctx context.Context) error {
		if strings.TrimSpace(owner) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
		}
		err := s.mutate(ctx, owner, func(ctx context.Context, store CartStore, inv InventoryStore) error {
			cart, err := store.FindUnpaidCartForUpdate(ctx, owner)
			if err != nil {
				return err
			}
			if cart == nil {
				return errCartNotFound()
			}
			lines, err := store.ListLinesWithStock(ctx, cart.ID)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no products")
			}

			if violations := collectViolations(lines); len(violations) > 0 {
				first := violations[0]
				return pkgerrors.New(first.Code, rejectionMessage(first)).
					WithDetails(map[string]any{"violations": violations})
			}

			paidOn := s.today()
			if err := store.MarkPaid(ctx, cart.ID, paidOn); err != nil {
				return err
			}

			out := &Snapshot{
				ID:          cart.ID,
				Owner:       cart.Owner,
				Paid:        true,
				PaymentDate: types.DatePtr(paidOn),
				Total:       cart.Total,
				Lines:       make([]LineSnapshot, 0, len(lines)),
			}
			decremented := 0
			for _, line := range lines {
				if err := inv.DecrementStock(ctx, line.Model, line.Quantity, paidOn); err != nil {
					if errors.Is(err, product.ErrStockConflict) {
						return pkgerrors.New(pkgerrors.CodeLowStock, "insufficient stock for "+line.Model).
							WithDetails(map[string]any{"model": line.Model, "requested": line.Quantity})
					}
					return err
				}
				decremented += line.Quantity
				out.Lines = append(out.Lines, LineSnapshot{
					Model:     line.Model,
					Quantity:  line.Quantity,
					Category:  line.Category,
					UnitPrice: line.UnitPrice,
				})
			}
			snapshot = out
			units = decremented
			return nil
		})
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeLowStock) || pkgerrors.Is(err, pkgerrors.CodeEmptyStock) ||
				pkgerrors.Is(err, pkgerrors.CodeProductNotFound) {
				s.logg.Warn(s.logg.WithField(ctx, "reason", string(pkgerrors.As(err).Code())), "checkout rejected")
			}
			return err
		}

		s.metrics.AddStockDecrement(units)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id": snapshot.ID,
			"total":   snapshot.Total.StringFixed(2),
			"units":   units,
		}), "checkout committed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *service) ClearCart(ctx context.Context, owner string) error {
	return s.run(ctx, "clear_cart", owner, func(ctx context.Context) error {
		if strings.TrimSpace(owner) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
		}
		return s.mutate(ctx, owner, func(ctx context.Context, store CartStore, _ InventoryStore) error {
			deleted, err := store.DeleteUnpaidCart(ctx, owner)
			if err != nil {
				return err
			}
			if !deleted {
				return errCartNotFound()
			}
			return nil
		})
	})
}

func (s *service) GetCurrentCart(ctx context.Context, owner string) (*Snapshot, error) {
	var out *Snapshot
	err := s.run(ctx, "get_current_cart", owner, func(ctx context.Context) error {
		rows, err := s.store.ListUnpaidRows(ctx, owner)
		if err != nil {
			return err
		}
		carts := foldCartRows(rows)
		if len(carts) == 0 {
			out = emptySnapshot(owner)
			return nil
		}
		// the newest cart wins, as in FindUnpaidCart
		out = &carts[len(carts)-1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) GetPurchaseHistory(ctx context.Context, owner string) ([]Snapshot, error) {
	var out []Snapshot
	err := s.run(ctx, "get_purchase_history", owner, func(ctx context.Context) error {
		rows, err := s.store.ListPaidRows(ctx, owner)
		if err != nil {
			return err
		}
		out = foldCartRows(rows)
		return nil
	})
	return out, err
}

func (s *service) GetAllCarts(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	err := s.run(ctx, "get_all_carts", "", func(ctx context.Context) error {
		rows, err := s.store.ListAllPaidRows(ctx)
		if err != nil {
			return err
		}
		out = foldCartRows(rows)
		return nil
	})
	return out, err
}

// DeleteAllCarts wipes every cart. It takes no owner lock.
func (s *service) DeleteAllCarts(ctx context.Context) error {
	return s.run(ctx, "delete_all_carts", "", func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.store.WithTx(tx).DeleteAll(ctx)
		})
		return pkgerrors.Storage(err, "delete all carts")
	})
}

// mutate serializes on the owner and runs fn in one transaction with both
// stores bound to it.
func (s *service) mutate(ctx context.Context, owner string, fn func(ctx context.Context, store CartStore, inv InventoryStore) error) error {
	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(ctx, s.store.WithTx(tx), s.inventory.WithTx(tx))
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Storage(err, "cart transaction")
}

func (s *service) run(ctx context.Context, op, owner string, fn func(ctx context.Context) error) error {
	attrs := []attribute.KeyValue{attribute.String("cart.operation", op)}
	if owner != "" {
		attrs = append(attrs, attribute.String("cart.owner", owner))
	}
	ctx, span := s.tracer.Start(ctx, "cart."+op, trace.WithAttributes(attrs...))
	defer span.End()

	ctx = s.logg.WithOperation(ctx, "cart."+op)
	if owner != "" {
		ctx = s.logg.WithUsername(ctx, owner)
	}

	start := time.Now()
	err := fn(ctx)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = outcomeFor(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if pkgerrors.Is(err, pkgerrors.CodeStorage) {
			s.logg.Error(ctx, "cart operation failed", err)
		}
	}
	s.metrics.Observe(op, outcome, time.Since(start))
	return err
}

func collectViolations(lines []LineStock) []Violation {
	var out []Violation
	for _, line := range lines {
		switch {
		case line.Stock == nil:
			out = append(out, Violation{Model: line.Model, Code: pkgerrors.CodeProductNotFound, Requested: line.Quantity})
		case *line.Stock == 0:
			out = append(out, Violation{Model: line.Model, Code: pkgerrors.CodeEmptyStock, Requested: line.Quantity})
		case *line.Stock < line.Quantity:
			out = append(out, Violation{
				Model:     line.Model,
				Code:      pkgerrors.CodeLowStock,
				Requested: line.Quantity,
				Available: *line.Stock,
			})
		}
	}
	return out
}

func rejectionMessage(v Violation) string {
	switch v.Code {
	case pkgerrors.CodeProductNotFound:
		return "product " + v.Model + " no longer exists"
	case pkgerrors.CodeEmptyStock:
		return "product " + v.Model + " is out of stock"
	default:
		return fmt.Sprintf("only %d of %d units of %s available", v.Available, v.Requested, v.Model)
	}
}

func outcomeFor(err error) string {
	if te := pkgerrors.As(err); te != nil {
		return string(te.Code())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

func errCartNotFound() error {
	return pkgerrors.New(pkgerrors.CodeCartNotFound, "no unpaid cart")
}

func requireOwnerAndModel(owner, model string) error {
	if strings.TrimSpace(owner) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if strings.TrimSpace(model) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "model is required")
	}
	return nil
}
