package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vimy"
	subsystem = "builder"
)

var (
	// Registry is the global Prometheus registry. Nil while metrics are off.
	Registry *prometheus.Registry

	// globalCollector is set by SetGlobalCollector once the collector is
	// registered.
	globalCollector Recorder
)

// Recorder is what the AI records against. Every Record* function below is a
// no-op until a collector is installed.
type Recorder interface {
	RecordOrderAdded(kind string)
	RecordOrderRemoved(kind, reason string)
	RecordQueueLength(n int)
	RecordCommand(kind string)
	RecordPowerToggle(role string, on bool)
	RecordCostLimits(metal, energy float64)
	RecordIdleError(kind string)
}

// InitRegistry creates the registry. Call once at startup when metrics are
// enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

func IsEnabled() bool {
	return Registry != nil
}

func SetGlobalCollector(c Recorder) {
	globalCollector = c
}

func RecordOrderAdded(kind string) {
	if globalCollector != nil {
		globalCollector.RecordOrderAdded(kind)
	}
}

func RecordOrderRemoved(kind, reason string) {
	if globalCollector != nil {
		globalCollector.RecordOrderRemoved(kind, reason)
	}
}

func RecordQueueLength(n int) {
	if globalCollector != nil {
		globalCollector.RecordQueueLength(n)
	}
}

func RecordCommand(kind string) {
	if globalCollector != nil {
		globalCollector.RecordCommand(kind)
	}
}

func RecordPowerToggle(role string, on bool) {
	if globalCollector != nil {
		globalCollector.RecordPowerToggle(role, on)
	}
}

// RecordCostLimits exports the forecaster limits. Unlimited is reported as
// +Inf.
func RecordCostLimits(metal, energy float64) {
	if globalCollector != nil {
		globalCollector.RecordCostLimits(metal, energy)
	}
}

func RecordIdleError(kind string) {
	if globalCollector != nil {
		globalCollector.RecordIdleError(kind)
	}
}
