package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "teleprompter",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Live session metrics
var (
	// SessionsActive tracks live streaming sessions across all identities.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "sessions_active",
			Help:      "Live streaming sessions.",
		},
	)

	// GroupsActive tracks identities with at least one live session.
	GroupsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "groups_active",
			Help:      "Identities with at least one live session.",
		},
	)

	// RoleChanges counts driver promotions by cause (connect, handoff, disconnect, eviction).
	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "role_changes_total",
			Help:      "Driver role assignments by cause.",
		},
		[]string{"cause"},
	)

	// Evictions counts sessions removed for a stale heartbeat, by trigger (sweep, timer).
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "evictions_total",
			Help:      "Sessions evicted for a stale heartbeat.",
		},
		[]string{"trigger"},
	)

	// Broadcasts counts group fan-outs by kind (position, role).
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to an identity group.",
		},
		[]string{"kind"},
	)

	// SendFailures counts messages that could not be queued for one session.
	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "send_failures_total",
			Help:      "Messages dropped for a closed or saturated session.",
		},
	)

	// ControlMessages counts control messages by outcome.
	ControlMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teleprompter",
			Subsystem: "scroll",
			Name:      "control_messages_total",
			Help:      "Control messages by outcome.",
		},
		[]string{"outcome"},
	)
)

// RecordHTTPRequest records one finished HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
