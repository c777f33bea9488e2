// Package metrics exposes the Prometheus registry of the VIES checker.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, batch) via promauto and registered on the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the checker.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves /metrics and a /health probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server is a running metrics endpoint.
type Server struct {
	srv  *http.Server
	addr net.Addr
	done chan error
}

// Serve listens on addr and serves Handler until Shutdown is called.
func Serve(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr: ln.Addr(),
		done: make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	logger.Info().Str("addr", s.addr.String()).Msg("Metrics endpoint listening")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.addr.String()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - vies_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - vies_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - vies_errors_total{class} (Counter): Errors by class (client, server, rate_limit, service, network, decode)
//
// Cache Metrics (pkg/cache):
//   - vies_cache_lookups_total{result} (Counter): Lookups by result (hit, miss)
//   - vies_cache_writes_total{result} (Counter): Answers stored or skipped as not definitive
//   - vies_cache_errors_total{operation} (Counter): Cache operation errors
//
// Throttle and Quota Metrics (pkg/ratelimit):
//   - vies_throttle_wait_seconds (Histogram): Time spent waiting before a call
//   - vies_quota_rejections_window{country} (Gauge): Rejections in the current tracking window
//   - vies_quota_hot_total{country} (Counter): Rejections recorded while a member state was hot
//
// Batch Metrics (pkg/batch):
//   - vies_batch_records_total{pass, outcome} (Counter): Records by pass and outcome
//   - vies_batch_pass_duration_seconds{pass} (Histogram): Pass duration
//   - vies_quota_rejections_total{country} (Counter): Quota rejections by member state
//
// Example Prometheus Queries:
//
//   # Quota rejection rate per member state
//   sum by (country) (rate(vies_quota_rejections_total[5m]))
//
//   # Share of records needing the retry pass
//   sum(vies_batch_records_total{pass="2"}) / sum(vies_batch_records_total{pass="1"})
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(vies_request_duration_seconds_bucket[5m]))
//
//   # Cache Hit Rate
//   sum(rate(vies_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(vies_cache_lookups_total[5m]))
