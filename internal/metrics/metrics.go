package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "auth_events_total",
		Help:      "Auth resolver operations by event and outcome.",
	}, []string{"event", "outcome"})

	SelfHeals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "auth_self_heal_total",
		Help:      "Persisted auth states cleared during status checks, by reason.",
	}, []string{"reason"})

	TenantSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "tenant_switch_total",
		Help:      "Tenant switch attempts by outcome.",
	}, []string{"outcome"})

	DerivationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "role_derivation_failures_total",
		Help:      "Role derivations that degraded to the cleared state.",
	})

	ActiveInstallations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portal",
		Name:      "active_installations",
		Help:      "Installation cores currently held in memory.",
	})
)

func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
