package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome classes for farm_requests_total, mirroring the failure taxonomy.
const (
	ClassSuccess        = "success"
	ClassRateLimited    = "rate_limited"
	ClassAuthExpired    = "auth_expired"
	ClassClientRejected = "client_rejected"
	ClassSoftSignal     = "soft_signal"
	ClassInformational  = "informational"
	ClassTransient      = "transient"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_requests_total",
		Help: "Remote API requests by outcome class",
	}, []string{"class"})

	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_token_refreshes_total",
		Help: "New bearer tokens issued",
	})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_sessions_completed_total",
		Help: "Worker sessions that reached done",
	})

	SessionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_sessions_failed_total",
		Help: "Worker sessions that aborted or timed out",
	})

	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_cycles_total",
		Help: "Completed orchestrator cycles",
	})

	SnapshotFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_snapshot_flushes_total",
		Help: "State snapshot writes to durable storage",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farm_active_workers",
		Help: "Workers currently running in the batch",
	})
)
