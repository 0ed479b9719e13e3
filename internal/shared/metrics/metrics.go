package metrics

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudvault-backend/internal/shared/telemetry"
)

const namespace = "vault"

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by outcome.",
	}, []string{"outcome"})

	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes committed by successful uploads.",
	})

	sagaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "saga_outcomes_total",
		Help:      "Two-step write outcomes.",
	}, []string{"outcome"})

	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrievals_total",
		Help:      "File retrievals by outcome.",
	}, []string{"outcome"})

	integrityDefects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "integrity_defects_total",
		Help:      "Records whose blob is missing from the object store.",
	})

	orphansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphan_blobs_total",
		Help:      "Orphaned blobs by stage (enqueued, deleted, failed).",
	}, []string{"stage"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_webhook_events_total",
		Help:      "Billing webhook deliveries by event type and result.",
	}, []string{"type", "result"})

	reconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_reconcile_total",
		Help:      "Reconciler outcomes.",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by group.",
	}, []string{"group"})

	panicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_panics_total",
		Help:      "Handler panics recovered, by route.",
	}, []string{"route"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "billing_reconcile_duration_seconds",
		Help:      "Time spent reconciling a single billing event.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

// IncUpload records an upload attempt outcome (committed, rejected, failed).
func IncUpload(outcome string) {
	uploadsTotal.WithLabelValues(outcome).Inc()
}

// AddUploadBytes records committed upload bytes.
func AddUploadBytes(n int64) {
	if n > 0 {
		uploadBytes.Add(float64(n))
	}
}

// IncSagaOutcome records a two-step write outcome.
func IncSagaOutcome(outcome string) {
	sagaOutcomes.WithLabelValues(outcome).Inc()
}

// IncRetrieval records a retrieval outcome (served, not_found, failed).
func IncRetrieval(outcome string) {
	retrievalsTotal.WithLabelValues(outcome).Inc()
}

// IncIntegrityDefect records a record whose blob is missing.
func IncIntegrityDefect() {
	integrityDefects.Inc()
}

// IncOrphan records an orphan blob lifecycle stage.
func IncOrphan(stage string) {
	orphansTotal.WithLabelValues(stage).Inc()
}

// IncWebhookEvent records a webhook delivery.
func IncWebhookEvent(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

// IncReconcile records a reconciler outcome.
func IncReconcile(outcome string) {
	reconcileOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveReconcileSeconds records reconcile latency.
func ObserveReconcileSeconds(v float64) {
	if v < 0 {
		v = 0
	}
	reconcileDuration.Observe(v)
}

// IncRateLimited counts a 429 for group.
func IncRateLimited(group string) {
	rateLimited.WithLabelValues(group).Inc()
}

func IncPanic(route string) {
	if route == "" {
		route = "unmatched"
	}
	panicsTotal.WithLabelValues(route).Inc()
}

// RegisterDB exports pool statistics for db under the given name. A second
// registration of the same name is ignored.
func RegisterDB(db *sql.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		telemetry.Warn("metrics.register_db_failed", map[string]any{"db": name, "err": err})
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
