package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchedTotal — количество поставленных на обработку документов.
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_dispatch_jobs_total",
		Help: "Количество документов, поставленных на обработку",
	}, []string{"mode"})

	// rejectedTotal — отказы в постановке (already_queued, queue_full, stopped, error).
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_dispatch_rejected_total",
		Help: "Количество отказов в постановке документа на обработку",
	}, []string{"mode", "reason"})

	// queueDepth — глубина очереди в памяти.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_dispatch_queue_depth",
		Help: "Количество документов в очереди в памяти",
	})
)
