package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc      *service
	client   *db.Client
	products *product.Repository
	metrics  *metrics.CartMetrics
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	products := product.NewRepository(client.DB())
	reg := prometheus.NewRegistry()
	cartMetrics := metrics.NewCartMetrics(reg)

	svc, err := NewService(ServiceParams{
		Store:     NewStore(client.DB()),
		Inventory: NewInventory(products),
		Tx:        client,
		Locker:    NewLocalLocker(10 * time.Second),
		Metrics:   cartMetrics,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return &harness{svc: impl, client: client, products: products, metrics: cartMetrics, registry: reg}
}

func (h *harness) seed(t *testing.T, model string, qty int, price string) {
	t.Helper()
	err := h.products.Register(context.Background(), &models.Product{
		Model:        model,
		Category:     enums.ProductCategorySmartphone,
		Quantity:     qty,
		SellingPrice: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", model, err)
	}
}

func (h *harness) setPrice(t *testing.T, model, price string) {
	t.Helper()
	err := h.client.DB().Model(&models.Product{}).Where("model = ?", model).
		Update("selling_price", decimal.RequireFromString(price)).Error
	if err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func (h *harness) stock(t *testing.T, model string) int {
	t.Helper()
	p, err := h.products.Lookup(context.Background(), model)
	if err != nil {
		t.Fatalf("lookup %s: %v", model, err)
	}
	return p.Quantity
}

func (h *harness) mustAdd(t *testing.T, owner, model string) {
	t.Helper()
	if err := h.svc.AddProduct(context.Background(), owner, model); err != nil {
		t.Fatalf("add %s for %s: %v", model, owner, err)
	}
}

func (h *harness) current(t *testing.T, owner string) *Snapshot {
	t.Helper()
	snap, err := h.svc.GetCurrentCart(context.Background(), owner)
	if err != nil {
		t.Fatalf("current cart: %v", err)
	}
	return snap
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.Is(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func expectTotal(t *testing.T, snap *Snapshot, want string) {
	t.Helper()
	if !snap.Total.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected total %s, got %s", want, snap.Total.String())
	}
}

func TestNewServiceRequiresDeps(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected missing store to fail")
	}
	client := dbtest.Open(t)
	_, err := NewService(ServiceParams{
		Store:     NewStore(client.DB()),
		Inventory: NewInventory(product.NewRepository(client.DB())),
		Tx:        client,
	})
	if err == nil {
		t.Fatal("expected missing locker to fail")
	}
}

func TestAddProductCreatesCartAndLine(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "iPhone15", 3, "999.99")

	h.mustAdd(t, "alice", "iPhone15")
	h.mustAdd(t, "alice", "iPhone15")

	snap := h.current(t, "alice")
	if snap.ID == 0 || snap.Paid || snap.PaymentDate != nil {
		t.Fatalf("expected persisted unpaid cart, got %+v", snap)
	}
	if len(snap.Lines) != 1 || snap.Lines[0].Quantity != 2 {
		t.Fatalf("expected single line with quantity 2, got %+v", snap.Lines)
	}
	if snap.Lines[0].Category != "Smartphone" {
		t.Fatalf("expected snapshotted category, got %q", snap.Lines[0].Category)
	}
	expectTotal(t, snap, "1999.98")
	if got := h.stock(t, "iPhone15"); got != 3 {
		t.Fatalf("adding must not touch stock, got %d", got)
	}
}

func TestAddProductRejections(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "empty", 0, "10")
	ctx := context.Background()

	expectCode(t, h.svc.AddProduct(ctx, "alice", "ghost"), pkgerrors.CodeProductNotFound)
	expectCode(t, h.svc.AddProduct(ctx, "alice", "empty"), pkgerrors.CodeEmptyStock)
	expectCode(t, h.svc.AddProduct(ctx, "", "empty"), pkgerrors.CodeValidation)

	snap := h.current(t, "alice")
	if snap.ID != 0 || len(snap.Lines) != 0 {
		t.Fatalf("rejected adds must not create a cart, got %+v", snap)
	}
}

func TestTotalFollowsPricePerEvent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 5, "100")
	ctx := context.Background()

	h.mustAdd(t, "alice", "X")
	h.setPrice(t, "X", "150")
	h.mustAdd(t, "alice", "X")
	expectTotal(t, h.current(t, "alice"), "250")

	h.setPrice(t, "X", "120")
	if err := h.svc.RemoveProduct(ctx, "alice", "X"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := h.current(t, "alice")
	expectTotal(t, snap, "130")
	if !snap.Lines[0].UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("line price must keep the first-add snapshot, got %s", snap.Lines[0].UnitPrice)
	}

	h.setPrice(t, "X", "200")
	if err := h.svc.RemoveProduct(ctx, "alice", "X"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	expectTotal(t, h.current(t, "alice"), "-70")
}

func TestRemoveProduct(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 5, "10")
	h.seed(t, "Y", 5, "20")
	ctx := context.Background()

	expectCode(t, h.svc.RemoveProduct(ctx, "alice", "X"), pkgerrors.CodeCartNotFound)
	expectCode(t, h.svc.RemoveProduct(ctx, "alice", "ghost"), pkgerrors.CodeProductNotFound)

	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "alice", "X")
	expectCode(t, h.svc.RemoveProduct(ctx, "alice", "Y"), pkgerrors.CodeProductNotInCart)

	if err := h.svc.RemoveProduct(ctx, "alice", "X"); err != nil {
		t.Fatalf("remove one unit: %v", err)
	}
	snap := h.current(t, "alice")
	if len(snap.Lines) != 1 || snap.Lines[0].Quantity != 1 {
		t.Fatalf("expected quantity decrement, got %+v", snap.Lines)
	}

	if err := h.svc.RemoveProduct(ctx, "alice", "X"); err != nil {
		t.Fatalf("remove last unit: %v", err)
	}
	snap = h.current(t, "alice")
	if snap.ID == 0 {
		t.Fatal("cart should survive with zero lines")
	}
	if len(snap.Lines) != 0 {
		t.Fatalf("expected line removal, got %+v", snap.Lines)
	}
	expectTotal(t, snap, "0")

	expectCode(t, h.svc.RemoveProduct(ctx, "alice", "X"), pkgerrors.CodeCartNotFound)
}

func TestCheckoutCommits(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 3, "10")
	h.seed(t, "Y", 1, "25.5")
	ctx := context.Background()

	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "alice", "Y")

	paid, err := h.svc.Checkout(ctx, "alice")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !paid.Paid || paid.PaymentDate == nil || paid.PaymentDate.String() != "2024-06-15" {
		t.Fatalf("expected paid cart stamped today, got %+v", paid)
	}
	expectTotal(t, paid, "45.5")
	if h.stock(t, "X") != 1 || h.stock(t, "Y") != 0 {
		t.Fatalf("unexpected stock after checkout: X=%d Y=%d", h.stock(t, "X"), h.stock(t, "Y"))
	}
	sold, err := h.products.Lookup(ctx, "Y")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if sold.SellingDate == nil || sold.SellingDate.String() != "2024-06-15" {
		t.Fatalf("expected selling date stamped, got %v", sold.SellingDate)
	}

	history, err := h.svc.GetPurchaseHistory(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != paid.ID || len(history[0].Lines) != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}

	empty := h.current(t, "alice")
	if empty.ID != 0 || len(empty.Lines) != 0 {
		t.Fatalf("expected no unpaid cart after checkout, got %+v", empty)
	}

	h.mustAdd(t, "alice", "X")
	next := h.current(t, "alice")
	if next.ID == paid.ID || next.Paid {
		t.Fatalf("expected a fresh unpaid cart, got %+v", next)
	}
	expectTotal(t, next, "10")

	if got := h.operationCount(t, "checkout", metrics.OutcomeOK); got != 1 {
		t.Fatalf("expected one ok checkout, got %v", got)
	}
}

func (h *harness) operationCount(t *testing.T, op, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "cart_operation_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestCheckoutLowStockLeavesEverythingUnchanged(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 1, "100")
	ctx := context.Background()

	h.mustAdd(t, "alice", "X")
	expectTotal(t, h.current(t, "alice"), "100")
	h.mustAdd(t, "alice", "X")

	_, err := h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeLowStock)

	if got := h.stock(t, "X"); got != 1 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
	snap := h.current(t, "alice")
	if snap.Paid || len(snap.Lines) != 1 || snap.Lines[0].Quantity != 2 {
		t.Fatalf("cart must stay unpaid with quantity 2, got %+v", snap)
	}
	expectTotal(t, snap, "200")
}

func TestCheckoutCollectsEveryViolation(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "A", 1, "10")
	h.seed(t, "B", 5, "10")
	h.seed(t, "C", 1, "10")
	ctx := context.Background()

	h.mustAdd(t, "alice", "A")
	h.mustAdd(t, "alice", "B")
	h.mustAdd(t, "alice", "C")
	h.mustAdd(t, "alice", "C")
	if err := h.client.DB().Model(&models.Product{}).Where("model = ?", "A").Update("quantity", 0).Error; err != nil {
		t.Fatalf("drain A: %v", err)
	}

	_, err := h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeEmptyStock)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok {
		t.Fatalf("expected violation details, got %T", pkgerrors.As(err).Details())
	}
	violations, ok := details["violations"].([]Violation)
	if !ok || len(violations) != 2 {
		t.Fatalf("expected two violations, got %+v", details["violations"])
	}
	if violations[0].Model != "A" || violations[1].Model != "C" || violations[1].Code != pkgerrors.CodeLowStock {
		t.Fatalf("unexpected violations: %+v", violations)
	}
	if h.stock(t, "B") != 5 {
		t.Fatal("no decrement may happen when any line fails")
	}
}

func TestCheckoutDeletedProduct(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 2, "10")
	ctx := context.Background()

	h.mustAdd(t, "alice", "X")
	if err := h.products.Delete(ctx, "X"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	_, err := h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeProductNotFound)
	if snap := h.current(t, "alice"); snap.Paid || len(snap.Lines) != 1 {
		t.Fatalf("cart must stay unpaid, got %+v", snap)
	}
}

func TestCheckoutWithoutCart(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 2, "10")
	ctx := context.Background()

	_, err := h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeCartNotFound)

	h.mustAdd(t, "alice", "X")
	if err := h.svc.RemoveProduct(ctx, "alice", "X"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err = h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeEmptyCart)

	snap := h.current(t, "alice")
	if snap.ID == 0 || snap.Paid {
		t.Fatalf("empty cart must stay unpaid, got %+v", snap)
	}
}

func TestClearCart(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 2, "10")
	ctx := context.Background()

	expectCode(t, h.svc.ClearCart(ctx, "alice"), pkgerrors.CodeCartNotFound)

	h.mustAdd(t, "alice", "X")
	if err := h.svc.ClearCart(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap := h.current(t, "alice")
	if snap.ID != 0 || len(snap.Lines) != 0 || snap.Owner != "alice" {
		t.Fatalf("expected empty shape after clear, got %+v", snap)
	}
	expectTotal(t, snap, "0")

	var lines int64
	if err := h.client.DB().Model(&models.CartLine{}).Count(&lines).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lines != 0 {
		t.Fatalf("expected lines removed with cart, got %d", lines)
	}
	expectCode(t, h.svc.ClearCart(ctx, "alice"), pkgerrors.CodeCartNotFound)
}

func TestGetAllCartsAndDeleteAll(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 10, "10")
	ctx := context.Background()

	for _, owner := range []string{"carol", "alice", "carol"} {
		h.mustAdd(t, owner, "X")
		if _, err := h.svc.Checkout(ctx, owner); err != nil {
			t.Fatalf("checkout %s: %v", owner, err)
		}
	}
	h.mustAdd(t, "bob", "X")

	all, err := h.svc.GetAllCarts(ctx)
	if err != nil {
		t.Fatalf("all carts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected only paid carts, got %d", len(all))
	}
	if all[0].Owner != "alice" || all[1].Owner != "carol" || all[2].Owner != "carol" || all[1].ID >= all[2].ID {
		t.Fatalf("expected owner then id ordering, got %+v", all)
	}

	if err := h.svc.DeleteAllCarts(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	all, err = h.svc.GetAllCarts(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected no carts, got %d (%v)", len(all), err)
	}
	if snap := h.current(t, "bob"); snap.ID != 0 {
		t.Fatalf("expected unpaid carts removed too, got %+v", snap)
	}
}

func TestConcurrentAddsBySameOwner(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 1, "5")

	const adds = 8
	var wg sync.WaitGroup
	errs := make(chan error, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.svc.AddProduct(context.Background(), "alice", "X")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add: %v", err)
		}
	}

	snap := h.current(t, "alice")
	if len(snap.Lines) != 1 || snap.Lines[0].Quantity != adds {
		t.Fatalf("expected one line with quantity %d, got %+v", adds, snap.Lines)
	}
	expectTotal(t, snap, "40")
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 1, "100")
	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "bob", "X")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, owner := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			_, err := h.svc.Checkout(context.Background(), owner)
			results <- err
		}(owner)
	}
	wg.Wait()
	close(results)

	var ok, low int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case pkgerrors.Is(err, pkgerrors.CodeLowStock), pkgerrors.Is(err, pkgerrors.CodeEmptyStock):
			low++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if ok != 1 || low != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d rejected=%d", ok, low)
	}
	if got := h.stock(t, "X"); got != 0 {
		t.Fatalf("expected final stock 0, got %d", got)
	}
}

func TestLockTimeoutSurfacesConflict(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 1, "5")
	locker := NewLocalLocker(20 * time.Millisecond)
	h.svc.locker = locker

	unlock, err := locker.Lock(context.Background(), "alice")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	expectCode(t, h.svc.AddProduct(context.Background(), "alice", "X"), pkgerrors.CodeConflict)
	if err := h.svc.AddProduct(context.Background(), "bob", "X"); err != nil {
		t.Fatalf("other owners must not contend: %v", err)
	}
}

// conflictingInventory fails the guarded decrement for one model, as a
// concurrent sale from another process would after validation passed.
type conflictingInventory struct {
	InventoryStore
	model string
}

func (c conflictingInventory) WithTx(tx *gorm.DB) InventoryStore {
	return conflictingInventory{InventoryStore: c.InventoryStore.WithTx(tx), model: c.model}
}

func (c conflictingInventory) DecrementStock(ctx context.Context, model string, amount int, sellingDate types.Date) error {
	if model == c.model {
		return product.ErrStockConflict
	}
	return c.InventoryStore.DecrementStock(ctx, model, amount, sellingDate)
}

func TestCheckoutRollsBackWhenLaterDecrementFails(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 3, "10")
	h.seed(t, "Y", 3, "10")
	ctx := context.Background()

	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "alice", "X")
	h.mustAdd(t, "alice", "Y")
	before := h.current(t, "alice")

	h.svc.inventory = conflictingInventory{InventoryStore: h.svc.inventory, model: "Y"}

	_, err := h.svc.Checkout(ctx, "alice")
	expectCode(t, err, pkgerrors.CodeLowStock)

	if got := h.stock(t, "X"); got != 3 {
		t.Fatalf("decrement of X must roll back, stock=%d", got)
	}
	after := h.current(t, "alice")
	if after.ID != before.ID || after.Paid || after.PaymentDate != nil || len(after.Lines) != 2 {
		t.Fatalf("cart must stay unpaid and intact, got %+v", after)
	}
	expectTotal(t, after, "30")

	history, err := h.svc.GetPurchaseHistory(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no paid carts, got %+v", history)
	}
	if got := h.operationCount(t, "checkout", string(pkgerrors.CodeLowStock)); got != 1 {
		t.Fatalf("expected one low-stock checkout, got %v", got)
	}
}

type failingLocker struct {
	err error
}

func (f failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, f.err
}

func TestLockBackendFailureSurfacesDependency(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 1, "5")
	cause := errors.New("connection refused")
	h.svc.locker = failingLocker{err: pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "acquire cart lock")}

	err := h.svc.AddProduct(context.Background(), "alice", "X")
	expectCode(t, err, pkgerrors.CodeDependency)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay reachable, got %v", err)
	}
	if snap := h.current(t, "alice"); snap.ID != 0 {
		t.Fatalf("nothing may be written without the lock, got %+v", snap)
	}
}

func TestCurrentCartMatchesMutationTarget(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "X", 5, "10")
	ctx := context.Background()

	// rows written before the unique index existed
	if err := h.client.DB().Exec("DROP INDEX ux_carts_owner_unpaid").Error; err != nil {
		t.Fatalf("drop index: %v", err)
	}
	store := NewStore(h.client.DB())
	older, err := store.CreateCart(ctx, "alice")
	if err != nil {
		t.Fatalf("older cart: %v", err)
	}
	newer, err := store.CreateCart(ctx, "alice")
	if err != nil {
		t.Fatalf("newer cart: %v", err)
	}

	h.mustAdd(t, "alice", "X")

	snap := h.current(t, "alice")
	if snap.ID != newer.ID || snap.ID == older.ID {
		t.Fatalf("expected current cart %d, got %d", newer.ID, snap.ID)
	}
	if len(snap.Lines) != 1 {
		t.Fatalf("expected the added line on the current cart, got %+v", snap)
	}
}
