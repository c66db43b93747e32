// metrics.go — Prometheus HTTP метрики для Register Module.
// Регистрирует метрики: rm_http_requests_total, rm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Register Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Register Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// uuidLen — длина UUID в каноническом виде.
const uuidLen = 36

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/suggestions/a1b2c3d4-.../promote → /api/v1/suggestions/{id}/promote
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/assessments/pending",
		"/api/v1/audit-logs":
		return path
	}

	// Динамические пути с UUID и допустимые суффиксы
	prefixes := []struct {
		prefix   string
		suffixes []string
	}{
		{"/api/v1/documents/", []string{"/process", "/reprocess", "/suggestions"}},
		{"/api/v1/suggestions/", []string{"/promote", "/reject", "/assessment"}},
	}

	for _, p := range prefixes {
		if !strings.HasPrefix(path, p.prefix) || len(path) < len(p.prefix)+uuidLen {
			continue
		}
		result := p.prefix + "{id}"
		suffix := path[len(p.prefix)+uuidLen:]
		if suffix == "" {
			return result
		}
		for _, s := range p.suffixes {
			if suffix == s {
				return result + s
			}
		}
		return result + "/other"
	}

	return "other"
}
