// Package metrics holds the Prometheus collectors for the billing API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mobileshop"

var (
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(Registry)

	BillsSaved = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bills_saved_total",
		Help:      "Bills saved, by kind.",
	}, []string{"kind"})

	BillGrandTotal = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bill_grand_total",
		Help:      "Grand total of saved bills in currency units.",
		Buckets:   []float64{100, 500, 1000, 5000, 10000, 25000, 50000, 100000},
	}, []string{"kind"})

	PaymentsRecorded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_recorded_total",
		Help:      "Payments recorded against existing bills.",
	})

	StockShortages = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_shortages_total",
		Help:      "Bills rejected because a product was out of stock.",
	})

	LookupCache = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_lookup_cache_total",
		Help:      "Service record lookups by cache result.",
	}, []string{"result"})

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveBill records one saved bill.
func ObserveBill(kind string, grandTotal float64) {
	BillsSaved.WithLabelValues(kind).Inc()
	BillGrandTotal.WithLabelValues(kind).Observe(grandTotal)
}

// Middleware counts requests by matched route pattern, not raw path, to keep
// label cardinality bounded.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		method := c.Method()
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
