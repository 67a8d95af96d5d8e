package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hera",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hera",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hera",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// ---- Replication ----
	GossipRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hera",
			Name:      "gossip_rounds_total",
			Help:      "Gossip rounds by peer and result (ok, error, idle).",
		},
		[]string{"peer", "result"},
	)

	DeltasApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hera",
			Name:      "gossip_deltas_applied_total",
			Help:      "Deltas appended to a replica from gossip, by origin.",
		},
		[]string{"origin"},
	)

	DeltasExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hera",
			Name:      "deltas_expired_total",
			Help:      "Deltas removed by the liveness sweep, by origin.",
		},
		[]string{"origin"},
	)

	LogLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hera",
			Name:      "log_deltas",
			Help:      "Deltas currently held per origin log.",
		},
		[]string{"origin"},
	)

	CombinedEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hera",
			Name:      "combined_entries",
			Help:      "Keys in the last built combined view, tombstones included.",
		},
	)

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hera",
			Name:      "rebuild_duration_seconds",
			Help:      "Time spent rebuilding the combined view.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hera",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "hera",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal, RequestDuration, InFlight,
		GossipRounds, DeltasApplied, DeltasExpired, LogLength, CombinedEntries, RebuildDuration,
		buildInfo, uptime,
	)
}

// MetricsHandler exposes the registry. Mount it with mux.Handle("GET /_metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	mux.Handle("GET /_info", telemetry.Instrument("info", http.HandlerFunc(r.Info)))
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
