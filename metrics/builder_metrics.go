package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BuilderMetricsCollector holds the build queue, command and power metrics.
type BuilderMetricsCollector struct {
	ordersAdded   *prometheus.CounterVec
	ordersRemoved *prometheus.CounterVec
	queueLength   prometheus.Gauge
	commands      *prometheus.CounterVec
	powerToggles  *prometheus.CounterVec
	costLimit     *prometheus.GaugeVec
	idleErrors    *prometheus.CounterVec
}

func NewBuilderMetricsCollector() *BuilderMetricsCollector {
	return &BuilderMetricsCollector{
		ordersAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_added_total",
				Help:      "Orders queued by kind",
			},
			[]string{"kind"},
		),
		ordersRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_removed_total",
				Help:      "Orders leaving the queue by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queue_length",
				Help:      "Orders currently queued",
			},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_total",
				Help:      "Unit commands dispatched by kind",
			},
			[]string{"kind"},
		),
		powerToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "power_toggles_total",
				Help:      "On/off and cloak switches by role and direction",
			},
			[]string{"role", "on"},
		),
		costLimit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cost_limit",
				Help:      "Current affordability limit per resource",
			},
			[]string{"resource"},
		),
		idleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idle_errors_total",
				Help:      "Idle-unit handling failures by error kind",
			},
			[]string{"error"},
		),
	}
}

// Register registers every builder metric with the global registry.
func (c *BuilderMetricsCollector) Register() error {
	if Registry == nil {
		return nil
	}

	metrics := []prometheus.Collector{
		c.ordersAdded,
		c.ordersRemoved,
		c.queueLength,
		c.commands,
		c.powerToggles,
		c.costLimit,
		c.idleErrors,
	}
	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func (c *BuilderMetricsCollector) RecordOrderAdded(kind string) {
	c.ordersAdded.WithLabelValues(kind).Inc()
}

func (c *BuilderMetricsCollector) RecordOrderRemoved(kind, reason string) {
	c.ordersRemoved.WithLabelValues(kind, reason).Inc()
}

func (c *BuilderMetricsCollector) RecordQueueLength(n int) {
	c.queueLength.Set(float64(n))
}

func (c *BuilderMetricsCollector) RecordCommand(kind string) {
	c.commands.WithLabelValues(kind).Inc()
}

func (c *BuilderMetricsCollector) RecordPowerToggle(role string, on bool) {
	c.powerToggles.WithLabelValues(role, strconv.FormatBool(on)).Inc()
}

func (c *BuilderMetricsCollector) RecordCostLimits(metal, energy float64) {
	c.costLimit.WithLabelValues("metal").Set(metal)
	c.costLimit.WithLabelValues("energy").Set(energy)
}

func (c *BuilderMetricsCollector) RecordIdleError(kind string) {
	c.idleErrors.WithLabelValues(kind).Inc()
}
