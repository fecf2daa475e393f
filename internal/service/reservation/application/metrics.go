// internal/service/reservation/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poscore_reservations_admitted_total",
		Help: "Number of reservation requests admitted.",
	})
	reservationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poscore_reservations_rejected_total",
		Help: "Number of reservation requests rejected, by reason.",
	}, []string{"reason"})
	reservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poscore_reservations_released_total",
		Help: "Number of reservations explicitly released by carts.",
	})
	reservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poscore_reservations_expired_total",
		Help: "Number of reservations transitioned to expired by the sweeper.",
	})
	cartsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poscore_carts_committed_total",
		Help: "Number of carts successfully committed at checkout.",
	})
	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poscore_commit_duration_seconds",
		Help:    "Wall time of checkout commits, including lock acquisition.",
		Buckets: prometheus.DefBuckets,
	})
	sweepBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poscore_sweep_batch_size",
		Help:    "Number of reservations expired per sweep tick.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poscore_sweep_duration_seconds",
		Help:    "Wall time of a single sweep tick.",
		Buckets: prometheus.DefBuckets,
	})
)
