package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "water_heater"

// Metrics owns a private registry so tests can create as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	temperature   prometheus.Gauge
	pressure      prometheus.Gauge
	heaterOn      prometheus.Gauge
	coolingDown   prometheus.Gauge
	safetyLatched prometheus.Gauge
	subscribers   prometheus.Gauge

	transitions    *prometheus.CounterVec
	actuatorErrors prometheus.Counter
	sensorErrors   prometheus.Counter
	datagrams      *prometheus.CounterVec
	telemetrySends *prometheus.CounterVec
}

// NewMetrics registers the controller collectors plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: metricsNamespace, Name: name, Help: help})
	}
	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		temperature:   gauge("temperature", "Last water temperature reading."),
		pressure:      gauge("pressure", "Last pressure value received over OSC."),
		heaterOn:      gauge("heater_on", "1 while the heater cycle is active."),
		coolingDown:   gauge("cooling_down", "1 after an upper-threshold shutdown until the next cold start."),
		safetyLatched: gauge("safety_latched", "1 once the stagnation safety latch has tripped."),
		subscribers:   gauge("telemetry_subscribers", "Number of resolved telemetry subscribers."),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Heater controller transitions by kind.",
		}, []string{"transition"}),
		actuatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actuator_errors_total",
			Help:      "Relay or display writes that failed.",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_errors_total",
			Help:      "Temperature reads that failed.",
		}),
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "osc_datagrams_total",
			Help:      "Inbound OSC datagrams by outcome.",
		}, []string{"result"}),
		telemetrySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "telemetry_messages_total",
			Help:      "Outbound telemetry messages by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.temperature, m.pressure, m.heaterOn, m.coolingDown, m.safetyLatched, m.subscribers,
		m.transitions, m.actuatorErrors, m.sensorErrors, m.datagrams, m.telemetrySends,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeState(s ControlState, temp float64) {
	if m == nil {
		return
	}
	m.temperature.Set(temp)
	m.heaterOn.Set(boolGauge(s.HeaterOn()))
	m.coolingDown.Set(boolGauge(s.CoolingDown))
	m.safetyLatched.Set(boolGauge(s.SafetyLatched))
}

func (m *Metrics) observeTransition(t Transition) {
	if m == nil || t == TransitionNone {
		return
	}
	m.transitions.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) actuatorError() {
	if m == nil {
		return
	}
	m.actuatorErrors.Inc()
}

func (m *Metrics) sensorError() {
	if m == nil {
		return
	}
	m.sensorErrors.Inc()
}

func (m *Metrics) observePressure(v float64) {
	if m == nil {
		return
	}
	m.pressure.Set(v)
}

func (m *Metrics) datagram(result string) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(result).Inc()
}

func (m *Metrics) telemetrySend(result string) {
	if m == nil {
		return
	}
	m.telemetrySends.WithLabelValues(result).Inc()
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
