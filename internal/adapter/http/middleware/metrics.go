package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iho/creditledger/internal/infrastructure/metrics"
)

// MetricsMiddleware records HTTP request metrics.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Wrap wraps an http.Handler with request counting and timing.
func (m *MetricsMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &metricsRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type metricsRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *metricsRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

const facilitiesPrefix = "/api/v1/facilities/"

// normalizePath replaces facility ids and disbursal indexes in metric labels
// to keep cardinality bounded.
// /api/v1/facilities/01ABC/disbursals/2/conclude -> /api/v1/facilities/:id/disbursals/:idx/conclude
func normalizePath(path string) string {
	if !strings.HasPrefix(path, facilitiesPrefix) || len(path) == len(facilitiesPrefix) {
		return path
	}

	parts := strings.Split(path[len(facilitiesPrefix):], "/")
	parts[0] = ":id"
	if len(parts) >= 3 && parts[1] == "disbursals" {
		parts[2] = ":idx"
	}

	return facilitiesPrefix + strings.Join(parts, "/")
}
