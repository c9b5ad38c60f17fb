package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram

	actionTotal    *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	deliveryTotal *prometheus.CounterVec

	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter

	laneQueueSize *prometheus.GaugeVec
	laneTasks     *prometheus.CounterVec

	dedupHits prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			webhookEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_webhook_events_total",
					Help: "Messaging events received by kind (text, attachment, other).",
				},
				[]string{"kind"},
			),
			webhookRejected: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_webhook_rejected_total",
					Help: "Webhook requests rejected by reason.",
				},
				[]string{"reason"},
			),
			dispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_dispatch_total",
					Help: "Dispatcher runs by outcome.",
				},
				[]string{"outcome"},
			),
			dispatchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shinimi_dispatch_duration_seconds",
					Help:    "Time spent running one action sequence.",
					Buckets: prometheus.DefBuckets,
				},
			),
			actionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_action_executions_total",
					Help: "Action executions by action and status.",
				},
				[]string{"action", "status"},
			),
			actionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shinimi_action_duration_seconds",
					Help:    "Action execution duration in seconds by action.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"action"},
			),
			deliveryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_deliveries_total",
					Help: "Outbound message deliveries by status.",
				},
				[]string{"status"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "shinimi_active_sessions",
					Help: "Current number of sessions held in the store.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "shinimi_sessions_created_total",
					Help: "Sessions created on first contact.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "shinimi_sessions_expired_total",
					Help: "Sessions removed by the idle sweeper.",
				},
			),
			laneQueueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "shinimi_lane_queue_size",
					Help: "Session lane occupancy: queued tasks and live lanes.",
				},
				[]string{"kind"},
			),
			laneTasks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shinimi_lane_tasks_total",
					Help: "Tasks completed in session lanes by status.",
				},
				[]string{"status"},
			),
			dedupHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "shinimi_dedup_hits_total",
					Help: "Redelivered messages skipped by the dedup store.",
				},
			),
		}

		prometheus.MustRegister(
			m.webhookEvents,
			m.webhookRejected,
			m.dispatchTotal,
			m.dispatchDuration,
			m.actionTotal,
			m.actionDuration,
			m.deliveryTotal,
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsExpired,
			m.laneQueueSize,
			m.laneTasks,
			m.dedupHits,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordWebhookEvent(kind string) {
	getMetrics().webhookEvents.WithLabelValues(kind).Inc()
}

func RecordWebhookRejected(reason string) {
	getMetrics().webhookRejected.WithLabelValues(reason).Inc()
}

func RecordDispatch(outcome string, duration time.Duration) {
	m := getMetrics()
	m.dispatchTotal.WithLabelValues(outcome).Inc()
	m.dispatchDuration.Observe(duration.Seconds())
}

func RecordAction(action string, duration time.Duration, success bool) {
	m := getMetrics()
	m.actionTotal.WithLabelValues(action, statusLabel(success)).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func RecordDelivery(success bool) {
	getMetrics().deliveryTotal.WithLabelValues(statusLabel(success)).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordSessionsExpired(n int) {
	getMetrics().sessionsExpired.Add(float64(n))
}

func SetLaneQueueSize(queued int) {
	getMetrics().laneQueueSize.WithLabelValues("queued").Set(float64(queued))
}

func SetActiveLanes(count int) {
	getMetrics().laneQueueSize.WithLabelValues("lanes").Set(float64(count))
}

func RecordLaneTask(success bool) {
	getMetrics().laneTasks.WithLabelValues(statusLabel(success)).Inc()
}

func RecordDedupHit() {
	getMetrics().dedupHits.Inc()
}
