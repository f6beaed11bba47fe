package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// operation 取 publish/assign/clock_in/clock_out/approve/availability，code 为空表示成功
	operationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shift_operation_results_total",
			Help: "Outcomes of scheduling and timesheet operations by error code.",
		},
		[]string{"operation", "code"},
	)

	shiftsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shifts_created_total",
			Help: "Shifts materialized by schedule publishing.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, operationResults, shiftsCreated)
}

// metrics 的 path 标签使用 chi 的路由模板，避免班次 ID 造成标签爆炸
func (h *Handler) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpReqs.WithLabelValues(r.Method, path, strconv.Itoa(rw.StatusCode)).Inc()
		httpLat.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func observeOperation(operation string, err error) {
	operationResults.WithLabelValues(operation, string(domain.ErrorCodeOf(err))).Inc()
}
