package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weiboharvest_api_requests_total",
		Help: "API requests by endpoint and HTTP status",
	}, []string{"endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weiboharvest_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"endpoint"})

	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weiboharvest_api_retries_total",
		Help: "Transport retries by endpoint and error type",
	}, []string{"endpoint", "type"})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weiboharvest_rate_limit_waits_total",
		Help: "Rate-limit backoffs by endpoint",
	}, []string{"endpoint"})

	RateLimitWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weiboharvest_rate_limit_wait_seconds_total",
		Help: "Total time spent sleeping on rate limits",
	})

	PostsHarvested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weiboharvest_posts_harvested_total",
		Help: "Posts written to the archive by harvest type and item type",
	}, []string{"harvest", "item_type"})

	HarvestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weiboharvest_cycles_total",
		Help: "Harvest cycles by harvest type and outcome",
	}, []string{"harvest", "outcome"})

	HarvestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weiboharvest_cycle_duration_seconds",
		Help:    "Harvest cycle duration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// ObserveRequest records one completed API call. status is 0 for network errors.
func ObserveRequest(endpoint string, status int, d time.Duration) {
	APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncRetry counts a transport retry
func IncRetry(endpoint, errorType string) {
	APIRetries.WithLabelValues(endpoint, errorType).Inc()
}

// ObserveRateLimitWait records a backoff sleep
func ObserveRateLimitWait(endpoint string, wait time.Duration) {
	RateLimitWaits.WithLabelValues(endpoint).Inc()
	RateLimitWaitSeconds.Add(wait.Seconds())
}

// ObserveCycle records the outcome and duration of one harvest cycle
func ObserveCycle(harvest, outcome string, start time.Time) {
	HarvestCycles.WithLabelValues(harvest, outcome).Inc()
	HarvestDuration.Observe(time.Since(start).Seconds())
}

// Handler serves /metrics and /health
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Serve runs the metrics listener on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
