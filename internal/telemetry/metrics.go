package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manifestflow/internal/logging"
)

var (
	RowsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifestflow_rows_imported_total",
		Help: "Manifest rows imported into the destination project.",
	}, []string{"pipeline"})

	RowsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifestflow_rows_failed_total",
		Help: "Manifest rows whose import failed, by failure kind.",
	}, []string{"pipeline", "kind"})

	PrefixMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifestflow_prefix_misses_total",
		Help: "Rows whose s3_uri did not start with the configured prefix.",
	}, []string{"pipeline"})

	ImportSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manifestflow_import_duration_seconds",
		Help:    "Time from import submission to completion per row.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"pipeline"})

	NodeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manifestflow_node_duration_seconds",
		Help:    "Duration of pipeline nodes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline", "node", "state"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifestflow_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"pipeline", "outcome"})
)

// Expose serves /metrics on port until ctx is done. Port 0 disables it.
func Expose(ctx context.Context, port int) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics endpoint stopped", "port", port, "err", err)
		}
	}()
}
