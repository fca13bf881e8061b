// Package telemetry exposes the Prometheus counters and gauges the pipeline
// records: codec errors, interpret errors, backpressure drops, and a
// live-worker gauge the Manager updates on its liveness sampling tick.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CodecErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onlinemonitor_codec_errors_total",
		Help: "Total number of frames that failed to decode or encode, by worker.",
	}, []string{"worker"})

	InterpretErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onlinemonitor_interpret_errors_total",
		Help: "Total number of Interpret calls that returned an error, by worker.",
	}, []string{"worker"})

	BackpressureDropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onlinemonitor_backpressure_drops_total",
		Help: "Total number of inbound messages dropped because a worker's queue was full.",
	}, []string{"worker"})

	WorkersRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onlinemonitor_workers_running",
		Help: "Number of workers the Manager has started, sampled on its liveness tick.",
	})

	InterpretDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "onlinemonitor_interpret_duration_seconds",
		Help:    "Duration of Interpret calls, by worker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
)

func init() {
	prometheus.MustRegister(
		CodecErrorsTotal,
		InterpretErrorsTotal,
		BackpressureDropsTotal,
		WorkersRunning,
		InterpretDuration,
	)
}

// ServeMetrics starts a dedicated HTTP server exposing /metrics at addr. It
// runs until the process exits; callers that already expose Prometheus
// elsewhere should mount promhttp.Handler() on their own mux instead.
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
