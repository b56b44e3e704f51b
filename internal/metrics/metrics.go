package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the light service.
type Metrics struct {
	registry *prometheus.Registry

	// Device metrics
	TransmissionsTotal   *prometheus.CounterVec
	TransmissionDuration prometheus.Histogram
	BreakerTripsTotal    prometheus.Counter
	DeviceEnabled        prometheus.Gauge
	ProbesTotal          *prometheus.CounterVec

	// Session metrics
	SpeakingTurnsTotal *prometheus.CounterVec
	TicksTotal         prometheus.Counter

	// Surface metrics
	EventsTotal      *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "crystal"
	}

	registry := prometheus.NewRegistry()

	transmissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_transmissions_total",
			Help:      "Commands sent to the light, by result",
		},
		[]string{"result"},
	)

	transmissionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_transmission_duration_seconds",
			Help:      "Time spent sending one command to the light",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	breakerTripsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_breaker_trips_total",
			Help:      "Times the light was disabled after repeated failures",
		},
	)

	deviceEnabled := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_enabled",
			Help:      "1 while commands are sent to the light",
		},
	)
	deviceEnabled.Set(1)

	probesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_probes_total",
			Help:      "Reachability probes, by result",
		},
		[]string{"result"},
	)

	speakingTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaking_turns_total",
			Help:      "Speaking turns animated, by bot",
		},
		[]string{"bot"},
	)

	ticksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "animation_ticks_total",
			Help:      "Animation frames computed",
		},
	)

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound event frames, by result",
		},
		[]string{"result"},
	)

	websocketClients := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected light websocket clients",
		},
	)

	registry.MustRegister(
		transmissionsTotal,
		transmissionDuration,
		breakerTripsTotal,
		deviceEnabled,
		probesTotal,
		speakingTurnsTotal,
		ticksTotal,
		eventsTotal,
		websocketClients,
	)

	return &Metrics{
		registry:             registry,
		TransmissionsTotal:   transmissionsTotal,
		TransmissionDuration: transmissionDuration,
		BreakerTripsTotal:    breakerTripsTotal,
		DeviceEnabled:        deviceEnabled,
		ProbesTotal:          probesTotal,
		SpeakingTurnsTotal:   speakingTurnsTotal,
		TicksTotal:           ticksTotal,
		EventsTotal:          eventsTotal,
		WebsocketClients:     websocketClients,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Transmission records one device send.
func (m *Metrics) Transmission(err error, duration time.Duration) {
	m.TransmissionsTotal.WithLabelValues(result(err)).Inc()
	m.TransmissionDuration.Observe(duration.Seconds())
}

// Tripped records the breaker disabling the device.
func (m *Metrics) Tripped() {
	m.BreakerTripsTotal.Inc()
	m.DeviceEnabled.Set(0)
}

// Probed records a reachability probe. A successful probe re-enables the
// device.
func (m *Metrics) Probed(err error) {
	m.ProbesTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.DeviceEnabled.Set(1)
	}
}

func (m *Metrics) SpeakingStarted(bot string) {
	m.SpeakingTurnsTotal.WithLabelValues(bot).Inc()
}

func (m *Metrics) Tick() {
	m.TicksTotal.Inc()
}

// Event records an inbound frame; result is "ok" or an error code.
func (m *Metrics) Event(result string) {
	m.EventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ClientsChanged(count int) {
	m.WebsocketClients.Set(float64(count))
}
