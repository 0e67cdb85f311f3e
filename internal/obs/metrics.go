package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveyhub_auth_events_total",
			Help: "Authentication events by outcome.",
		},
		[]string{"event", "outcome"},
	)

	tenantBootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveyhub_tenant_bootstrap_total",
			Help: "Organization bootstrap attempts by outcome.",
		},
		[]string{"outcome"},
	)

	refreshTokensReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "surveyhub_refresh_tokens_reaped_total",
		Help: "Inert refresh token rows deleted by the reaper.",
	})

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "SurveyHub build information.",
		},
		[]string{"version", "commit"},
	)

	initOnce sync.Once
)

// Init registers the metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authEventsTotal, tenantBootstrapTotal, refreshTokensReapedTotal,
			buildInfo,
		)
	})
}

// SetBuildInfo sets build_info{version,commit} to 1.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome converts an error into a metric outcome label.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordAuthEvent counts an authentication event such as "login".
func RecordAuthEvent(event string, err error) {
	authEventsTotal.WithLabelValues(event, Outcome(err)).Inc()
}

// RecordBootstrap counts an organization bootstrap attempt.
func RecordBootstrap(err error) {
	tenantBootstrapTotal.WithLabelValues(Outcome(err)).Inc()
}

// RefreshTokensReaped adds n deleted refresh token rows.
func RefreshTokensReaped(n int64) {
	if n > 0 {
		refreshTokensReapedTotal.Add(float64(n))
	}
}

// Instrument records request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifier segments so path labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "organizations" && parts[3] != "" {
		parts[3] = ":id"
	}
	return strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
