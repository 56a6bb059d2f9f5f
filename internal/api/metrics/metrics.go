// Package metrics defines and registers all custom Prometheus metrics for the
// identity API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Collectors are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Authentication metrics ────────────────────────────────────────────────────

// AuthAttemptsTotal counts authentication use-case outcomes.
// Labels:
//   - operation: "register", "login"
//   - outcome: "success", "invalid_credentials", "exists", "throttled", "error"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// AuthorizationDeniedTotal counts requests rejected by the role guard.
// Label:
//   - route: the matched route path (e.g. "/admin/dashboard")
var AuthorizationDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_denied_total",
		Help:      "Total number of authenticated requests rejected for insufficient role.",
	},
	[]string{"route"},
)

// ── Directory metrics ─────────────────────────────────────────────────────────

// DirectoryCallDuration measures wall time of a wrapped directory call,
// retries included.
// Labels:
//   - operation: directory method name (e.g. "GetByEmail")
//   - outcome: "ok", "not_found", "exists", "timeout", "unavailable", "internal", "error"
var DirectoryCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "directory_call_duration_seconds",
		Help:      "Duration of user directory calls including retries.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

// DirectoryRetriesTotal counts retry attempts after a transient failure.
// Label:
//   - operation: directory method name
var DirectoryRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "directory_retries_total",
		Help:      "Total number of user directory retries after transient failures.",
	},
	[]string{"operation"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditEventsTotal counts audit events by final disposition.
// Labels:
//   - event_type: e.g. "USER_LOGIN"
//   - result: "persisted", "failed", "dropped"
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events, by event type and result.",
	},
	[]string{"event_type", "result"},
)

// AuditQueueDepth tracks the number of events waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
