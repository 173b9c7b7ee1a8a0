// Package metrics exposes Prometheus collectors for membankd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcilePasses counts reconciliation passes by outcome
	// (completed, aborted).
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "reconcile",
		Name:      "passes_total",
		Help:      "Total reconciliation passes by outcome.",
	}, []string{"outcome"})

	// ProposedActions counts actions emitted in proposals by type.
	ProposedActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "reconcile",
		Name:      "proposed_actions_total",
		Help:      "Total proposed sync actions by type.",
	}, []string{"type"})

	// AppliedActions counts applied actions by type and result
	// (ok, failed).
	AppliedActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "executor",
		Name:      "applied_actions_total",
		Help:      "Total applied sync actions by type and result.",
	}, []string{"type", "result"})

	// ModeViolations counts rejected calls attempted outside their
	// permitted mode.
	ModeViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "executor",
		Name:      "mode_violations_total",
		Help:      "Total calls rejected by the mode gate.",
	})

	// TrackerRetries counts retried remote tracker calls by reason
	// (rate_limited, transient).
	TrackerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "tracker",
		Name:      "retries_total",
		Help:      "Total retried tracker API calls by reason.",
	}, []string{"reason"})

	// ToolInvocations counts side-effect tool invocations by tool and
	// result (ok, failed).
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membankd",
		Subsystem: "tools",
		Name:      "invocations_total",
		Help:      "Total side-effect tool invocations by tool and result.",
	}, []string{"tool", "result"})
)
