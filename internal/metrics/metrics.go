package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var connectionStates = []string{"disconnected", "connected", "failed", "suspended"}

var (
	// actionsTotal tracks host action invocations
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_adapter_actions_total",
			Help: "Total host actions by action code and outcome",
		},
		[]string{"action", "outcome"},
	)

	// triggersTotal tracks workflow triggers emitted to the host
	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_adapter_triggers_total",
			Help: "Total workflow triggers emitted by event name",
		},
		[]string{"event"},
	)

	// connectionState is 1 for the current connection state, 0 otherwise
	connectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_adapter_connection_state",
			Help: "Current realtime connection state",
		},
		[]string{"state"},
	)

	// registryEntries tracks active channels and spaces
	registryEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_adapter_registry_entries",
			Help: "Number of active registry entries by registry",
		},
		[]string{"registry"},
	)
)

// RecordAction increments the action counter.
func RecordAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordTrigger increments the trigger counter.
func RecordTrigger(event string) {
	triggersTotal.WithLabelValues(event).Inc()
}

// SetConnectionState marks state as the current connection state.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}

// SetRegistryEntries records the size of a registry.
func SetRegistryEntries(registry string, n int) {
	registryEntries.WithLabelValues(registry).Set(float64(n))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
