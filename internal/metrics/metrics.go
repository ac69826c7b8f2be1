// Package metrics holds the Prometheus collectors of both processes.
//
// Every method is safe on a nil *Metrics, so components can be built
// without metrics in tests.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fanctl"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Channel metrics
	ChannelPublishes *prometheus.CounterVec
	ChannelConsumes  *prometheus.CounterVec

	// Controller metrics
	SensorChanges       prometheus.Counter
	RegisterPublishes   prometheus.Counter
	SuppressedPublishes prometheus.Counter
	MaxTemperature      prometheus.Gauge
	DutyCycle           prometheus.Gauge
	PulseWidth          *prometheus.GaugeVec
	FaultedSensors      prometheus.Gauge

	// Mirror metrics
	MirrorErrors prometheus.Counter

	// Panel metrics
	SourcePolls *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ChannelPublishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_publishes_total",
				Help:      "Snapshots published into a shared memory channel",
			},
			[]string{"channel"},
		),
		ChannelConsumes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_consumes_total",
				Help:      "Snapshots consumed from a shared memory channel",
			},
			[]string{"channel"},
		),

		SensorChanges: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sensor_changes_total",
				Help:      "Consumed sensor snapshots that differed from the last known one",
			},
		),
		RegisterPublishes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "register_publishes_total",
				Help:      "Register snapshots published",
			},
		),
		SuppressedPublishes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "register_publishes_suppressed_total",
				Help:      "Aggregations skipped because the max temperature did not change",
			},
		),
		MaxTemperature: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "max_temperature_celsius",
				Help:      "Max temperature used for the last publish",
			},
		),
		DutyCycle: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "duty_cycle_percent",
				Help:      "Duty cycle of the last publish",
			},
		),
		PulseWidth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pulse_width",
				Help:      "Pulse width of the last publish per fan",
			},
			[]string{"fan"},
		),
		FaultedSensors: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "faulted_sensors",
				Help:      "Sensors currently held at the fail-safe default",
			},
		),

		MirrorErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_errors_total",
				Help:      "Failed register mirror deliveries",
			},
		),

		SourcePolls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_polls_total",
				Help:      "Temperature source polls by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Published(channel string) {
	if m == nil {
		return
	}
	m.ChannelPublishes.WithLabelValues(channel).Inc()
}

func (m *Metrics) Consumed(channel string) {
	if m == nil {
		return
	}
	m.ChannelConsumes.WithLabelValues(channel).Inc()
}

func (m *Metrics) SensorChanged(faulted int) {
	if m == nil {
		return
	}
	m.SensorChanges.Inc()
	m.FaultedSensors.Set(float64(faulted))
}

// RegistersPublished records one publish and its inputs.
// fans names the label for each value; missing names fall back to the index.
func (m *Metrics) RegistersPublished(maxTemperature, dutyCycle float64, fans []string, values []uint32) {
	if m == nil {
		return
	}
	m.RegisterPublishes.Inc()
	m.MaxTemperature.Set(maxTemperature)
	m.DutyCycle.Set(dutyCycle)
	for i, v := range values {
		name := strconv.Itoa(i)
		if i < len(fans) && fans[i] != "" {
			name = fans[i]
		}
		m.PulseWidth.WithLabelValues(name).Set(float64(v))
	}
}

func (m *Metrics) Suppressed() {
	if m == nil {
		return
	}
	m.SuppressedPublishes.Inc()
}

func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.MirrorErrors.Inc()
}

func (m *Metrics) SourcePolled(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SourcePolls.WithLabelValues(result).Inc()
}
