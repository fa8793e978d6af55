package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotot_page_fetches_total",
			Help: "Total number of listing page fetches",
		},
		[]string{"domain", "status"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotot_page_fetch_duration_seconds",
			Help:    "Duration of listing page fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	PageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotot_page_bytes_total",
			Help: "Total bytes downloaded across all page fetches",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotot_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotot_searches_total",
			Help: "Completed date searches by terminal outcome",
		},
		[]string{"outcome"},
	)

	SearchHops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gotot_search_hops",
			Help:    "Number of hops taken by a search before it terminated",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 40},
		},
	)
)

// RecordFetch updates the fetch metrics. status is the HTTP status code, or
// "error" when no response was received.
func RecordFetch(domain, status string, duration time.Duration, bytes int) {
	PageFetchesTotal.WithLabelValues(domain, status).Inc()
	PageFetchDuration.WithLabelValues(domain).Observe(duration.Seconds())
	PageBytesTotal.WithLabelValues(domain).Add(float64(bytes))
}

// RecordSearch counts a finished search.
func RecordSearch(outcome string, hops int) {
	SearchesTotal.WithLabelValues(outcome).Inc()
	SearchHops.Observe(float64(hops))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
