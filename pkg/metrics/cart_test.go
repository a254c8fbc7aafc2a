package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCartMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCartMetrics(reg)

	metrics.Observe("checkout", "", 120*time.Millisecond)
	metrics.Observe("checkout", "LOW_PRODUCT_STOCK", 10*time.Millisecond)
	metrics.AddStockDecrement(3)
	metrics.AddStockDecrement(0)

	if got := testutil.ToFloat64(metrics.total.WithLabelValues("checkout", OutcomeOK)); got != 1 {
		t.Fatalf("expected ok=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.total.WithLabelValues("checkout", "LOW_PRODUCT_STOCK")); got != 1 {
		t.Fatalf("expected LOW_PRODUCT_STOCK=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.decrement); got != 3 {
		t.Fatalf("expected 3 decremented units, got %f", got)
	}

	expected := `
# HELP cart_stock_decrement_units_total Units of stock removed from inventory by checkouts.
# TYPE cart_stock_decrement_units_total counter
cart_stock_decrement_units_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "cart_stock_decrement_units_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if sum := histogramSum(mfs, "cart_operation_duration_seconds", "checkout"); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestNilCartMetricsIsSafe(t *testing.T) {
	var metrics *CartMetrics
	metrics.Observe("add_product", OutcomeOK, time.Millisecond)
	metrics.AddStockDecrement(1)

	NewCartMetrics(nil).Observe("add_product", OutcomeOK, time.Millisecond)
}

func histogramSum(mfs []*dto.MetricFamily, name, operation string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "operation" && label.GetValue() == operation {
					return metric.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return 0
}
