package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeOK labels operations that completed without error.
const OutcomeOK = "ok"

// CartMetrics records cart lifecycle operation timings and outcomes.
type CartMetrics struct {
	duration  *prometheus.HistogramVec
	total     *prometheus.CounterVec
	decrement prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_operation_duration_seconds",
		Help:    "Duration of cart lifecycle operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operation_total",
		Help: "Cart lifecycle operations by outcome (ok or error code).",
	}, []string{"operation", "outcome"})
	decrement := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_stock_decrement_units_total",
		Help: "Units of stock removed from inventory by checkouts.",
	})
	reg.MustRegister(duration, total, decrement)
	return &CartMetrics{
		duration:  duration,
		total:     total,
		decrement: decrement,
	}
}

// Observe records one finished operation.
func (c *CartMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	operation = normalizeLabel(operation)
	if outcome == "" {
		outcome = OutcomeOK
	}
	c.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	c.total.WithLabelValues(operation, outcome).Inc()
}

// AddStockDecrement counts units removed from stock by a committed checkout.
func (c *CartMetrics) AddStockDecrement(units int) {
	if c == nil || c.decrement == nil || units <= 0 {
		return
	}
	c.decrement.Add(float64(units))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
