// metrics.go — Prometheus-метрики сервисного слоя.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pipelineRunsTotal — завершённые прогоны конвейера по исходу.
	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_pipeline_runs_total",
		Help: "Количество прогонов конвейера обработки документов",
	}, []string{"outcome"}) // outcome: completed, failed, skipped

	// pipelineDuration — длительность прогона конвейера.
	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_pipeline_duration_seconds",
		Help:    "Длительность прогона конвейера обработки документов",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s … ~256s
	})

	// suggestionsCreatedTotal — созданные предложения по типу.
	suggestionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_suggestions_created_total",
		Help: "Количество предложений, созданных конвейером",
	}, []string{"type"})

	// transitionsTotal — переходы жизненного цикла предложений.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_suggestion_transitions_total",
		Help: "Количество попыток перехода статуса предложения",
	}, []string{"event", "result"}) // result: ok, conflict, error

	// tenantCacheTotal — обращения к кэшу арендаторов.
	tenantCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_tenant_cache_requests_total",
		Help: "Обращения к кэшу арендаторов пользователей",
	}, []string{"result"}) // result: hit, miss
)
