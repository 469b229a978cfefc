// Package metrics declares the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_updates_total",
		Help: "Telegram updates received, by kind",
	}, []string{"kind"})

	CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_commands_total",
		Help: "Commands dispatched, by command and outcome",
	}, []string{"command", "outcome"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kaoribot_command_duration_seconds",
		Help:    "Handler execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	AccessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_access_denied_total",
		Help: "Dispatches rejected by access control, by reason",
	}, []string{"reason"})

	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaoribot_sessions_active",
		Help: "Live interaction sessions, by feature",
	}, []string{"feature"})

	SessionsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_sessions_expired_total",
		Help: "Interaction sessions removed by their deadline",
	}, []string{"feature"})

	XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaoribot_xp_awarded_total",
		Help: "Experience points granted by successful commands",
	})

	LevelUps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaoribot_level_ups_total",
		Help: "Rank tier increases announced",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_messages_sent_total",
		Help: "Outbound Telegram calls, by action and status",
	}, []string{"action", "status"})

	QueuedSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_queued_sends_total",
		Help: "Jobs finished by the outbound send queue, by action and outcome",
	}, []string{"action", "outcome"})

	SendRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_send_retries_total",
		Help: "Retried outbound sends, by action and failure kind",
	}, []string{"action", "kind"})

	SendQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaoribot_send_queue_depth",
		Help: "Jobs waiting in the outbound send queue",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_rate_limited_total",
		Help: "Updates dropped by the per-user limiter, by update kind",
	}, []string{"kind"})

	ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaoribot_scheduled_runs_total",
		Help: "Scheduled job executions, by job and status",
	}, []string{"job", "status"})
)

// Status maps an error to the status label used by the counters above.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
