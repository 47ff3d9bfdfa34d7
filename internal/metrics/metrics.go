package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsCreated counts committed ledger transactions by kind
	TransactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_created_total",
			Help: "Total number of ledger transactions committed",
		},
		[]string{"kind"},
	)

	// RequestDuration is the HTTP handler latency by route and status
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// Handler serves the scrape endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
