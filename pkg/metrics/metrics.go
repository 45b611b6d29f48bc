package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	tradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_executed_total",
			Help: "Total number of trade requests by side and outcome",
		},
		[]string{"side", "status"},
	)

	tradeExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_execution_duration_seconds",
			Help:    "Duration of one atomic trade unit, from open to commit",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"side"},
	)

	paymentTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Total number of payment transactions by type and status",
		},
		[]string{"type", "status"},
	)

	priceScrapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scrapes_total",
			Help: "Total number of external price scrape attempts",
		},
		[]string{"status"},
	)
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(httpRequestsTotal)
	registry.MustRegister(httpRequestDuration)
	registry.MustRegister(tradesExecuted)
	registry.MustRegister(tradeExecutionDuration)
	registry.MustRegister(paymentTransactions)
	registry.MustRegister(priceScrapes)
}

// Registry returns the prometheus registry
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns a Fiber handler for the /metrics endpoint
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

// Middleware returns Fiber middleware that records HTTP metrics
func Middleware(skipPaths ...string) fiber.Handler {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		method := c.Method()
		path := c.Route().Path

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// RecordTrade records a trade request outcome
func RecordTrade(side, status string) {
	tradesExecuted.WithLabelValues(side, status).Inc()
}

// ObserveTradeExecution records the duration of one atomic trade unit
func ObserveTradeExecution(side string, duration time.Duration) {
	tradeExecutionDuration.WithLabelValues(side).Observe(duration.Seconds())
}

// RecordPaymentTransaction records a payment transaction
func RecordPaymentTransaction(txType, status string) {
	paymentTransactions.WithLabelValues(txType, status).Inc()
}

// RecordPriceScrape records an external price scrape attempt
func RecordPriceScrape(status string) {
	priceScrapes.WithLabelValues(status).Inc()
}
