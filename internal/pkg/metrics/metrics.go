// Package metrics defines and registers all custom Prometheus metrics for the
// account security core. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics register with the default Prometheus registry on package init via
// promauto; the /metrics route exposes them alongside the echo request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "account"

// ── Authentication metrics ────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by outcome.
// Label:
//   - result: "success", "invalid_credentials", "locked", "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, labelled by result.",
	},
	[]string{"result"},
)

// LockoutsTotal counts lockouts started by repeated failures.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of account lockouts triggered.",
	},
)

// RegistrationsTotal counts registration outcomes.
// Label:
//   - result: "success", "conflict", "invalid", "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, labelled by result.",
	},
	[]string{"result"},
)

// PasswordResetsTotal counts password-reset activity.
// Labels:
//   - stage: "request" or "confirm"
//   - result: "success", "unknown_email", "delivery_failed", "invalid_token", "error"
var PasswordResetsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Total number of password reset requests and confirmations.",
	},
	[]string{"stage", "result"},
)

// ── Credential hashing ────────────────────────────────────────────────────────

// HashDuration measures bcrypt work including semaphore wait.
// Label:
//   - op: "hash" or "verify"
var HashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "credential_hash_duration_seconds",
		Help:      "Duration of credential hashing and verification.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// ── Security event pipeline ───────────────────────────────────────────────────

// SecurityEventsTotal counts audit events by outcome.
// Label:
//   - result: "stored", "dropped", "failed"
var SecurityEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_total",
		Help:      "Total number of security audit events, labelled by result.",
	},
	[]string{"result"},
)

// SecurityEventsQueueDepth tracks events waiting in each dispatcher shard.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var SecurityEventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "security_events_queue_depth",
		Help:      "Current number of security events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
