// Package metrics holds the Prometheus collectors of the tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthFailures counts rejected authentication attempts by reason
	// (malformed, expired, revoked, unknown_user, wrong_kind, credentials, inactive).
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_auth_failures_total",
		Help: "Rejected authentication attempts by reason.",
	}, []string{"reason"})

	// PermissionDenied counts policy rejections by operation.
	PermissionDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_permission_denied_total",
		Help: "Authorization policy rejections by operation.",
	}, []string{"operation"})

	// TokensRevoked counts blacklist writes by token kind.
	TokensRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_tokens_revoked_total",
		Help: "Tokens written to the revocation store by kind.",
	}, []string{"kind"})

	// RemindersSent counts task reminder emails by kind.
	RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_reminders_sent_total",
		Help: "Task reminder emails dispatched by kind.",
	}, []string{"kind"})
)
