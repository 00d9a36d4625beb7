package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "demandcast"

// Entity outcomes of the per-entity prediction loop
const (
	OutcomeSkipped  = "skipped"
	OutcomeForecast = "forecast"
	OutcomeFailed   = "failed"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	// ⭐ SSOT: 메트릭 등록은 여기서만
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by kind (training, prediction) and status.",
		},
		[]string{"kind", "status"},
	)

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)

	entityOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "entities_total",
			Help:      "Entities processed by the prediction loop, by outcome.",
		},
		[]string{"outcome"},
	)

	persistedRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "forecast_rows_total",
			Help:      "Forecast rows persisted to the result store.",
		},
	)

	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "subscribers",
			Help:      "Connected notification subscribers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		pipelineRuns,
		pipelineDuration,
		entityOutcomes,
		persistedRows,
		subscribers,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRun records one pipeline run.
func RecordRun(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	pipelineRuns.WithLabelValues(kind, status).Inc()
	pipelineDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEntities adds loop outcome counts.
func RecordEntities(skipped, forecast, failed int) {
	entityOutcomes.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
	entityOutcomes.WithLabelValues(OutcomeForecast).Add(float64(forecast))
	entityOutcomes.WithLabelValues(OutcomeFailed).Add(float64(failed))
}

// RecordPersisted adds persisted forecast rows.
func RecordPersisted(n int) {
	persistedRows.Add(float64(n))
}

// SetSubscribers sets the connected subscriber gauge.
func SetSubscribers(n int) {
	subscribers.Set(float64(n))
}

// InstrumentHandler wraps the handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath keeps label cardinality bounded: only known API prefixes survive.
func canonicalPath(raw string) string {
	switch {
	case strings.HasPrefix(raw, "/api/ai/demandforecast"):
		return "/api/ai/demandforecast"
	case strings.HasPrefix(raw, "/api/ai/pipeline"):
		return "/api/ai/pipeline"
	case strings.HasPrefix(raw, "/api/ai/health"):
		return "/api/ai/health"
	default:
		return "other"
	}
}
