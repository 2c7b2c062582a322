package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallbox"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ControllerMetrics are the session controller metrics. A nil *ControllerMetrics
// is valid and records nothing.
type ControllerMetrics struct {
	Transitions    *prometheus.CounterVec // labels: from, to
	PeerRejections *prometheus.CounterVec // labels: intent
	DecodeErrors   *prometheus.CounterVec // labels: kind
	RelayWrites    *prometheus.CounterVec // labels: value, result
	PilotChanges   *prometheus.CounterVec // labels: state
	MessagesRx     prometheus.Counter
	MessagesTx     *prometheus.CounterVec // labels: result
	WatchdogTrips  prometheus.Counter
	State          prometheus.Gauge
	Relay          prometheus.Gauge
	SessionEnabled prometheus.Gauge
}

func NewControllerMetrics(reg prometheus.Registerer) *ControllerMetrics {
	m := &ControllerMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Charging state transitions.",
		}, []string{"from", "to"}),
		PeerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_rejections_total",
			Help:      "Peer intents rejected by the sequencing policy.",
		}, []string{"intent"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound datagrams dropped as malformed.",
		}, []string{"kind"}),
		RelayWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_writes_total",
			Help:      "Main contactor writes.",
		}, []string{"value", "result"}),
		PilotChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pilot_changes_total",
			Help:      "Control-Pilot state changes by new state.",
		}, []string{"state"}),
		MessagesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_received_total",
			Help:      "Valid peer messages received.",
		}),
		MessagesTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_sent_total",
			Help:      "Status messages sent to the peer.",
		}, []string{"result"}),
		WatchdogTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_watchdog_trips_total",
			Help:      "Relay cut-offs caused by a silent peer.",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "charging_state",
			Help:      "Current charging state ordinal.",
		}),
		Relay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_enabled",
			Help:      "1 when the main contactor is energized.",
		}),
		SessionEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_enabled",
			Help:      "1 when charging sessions are permitted.",
		}),
	}
	reg.MustRegister(m.Transitions, m.PeerRejections, m.DecodeErrors, m.RelayWrites, m.PilotChanges,
		m.MessagesRx, m.MessagesTx, m.WatchdogTrips, m.State, m.Relay, m.SessionEnabled)
	return m
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *ControllerMetrics) ObserveTransition(from, to string, state uint8) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
	m.State.Set(float64(state))
}

func (m *ControllerMetrics) ObservePeerRejection(intent string) {
	if m == nil {
		return
	}
	m.PeerRejections.WithLabelValues(intent).Inc()
}

func (m *ControllerMetrics) ObserveDecodeError(kind string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

// ObserveRelayWrite records a write attempt and, when it succeeded, the new level.
func (m *ControllerMetrics) ObserveRelayWrite(on bool, err error) {
	if m == nil {
		return
	}
	m.RelayWrites.WithLabelValues(strconv.FormatBool(on), result(err)).Inc()
	if err == nil {
		m.Relay.Set(boolGauge(on))
	}
}

func (m *ControllerMetrics) ObservePilot(state string) {
	if m == nil {
		return
	}
	m.PilotChanges.WithLabelValues(state).Inc()
}

func (m *ControllerMetrics) ObserveReceived() {
	if m == nil {
		return
	}
	m.MessagesRx.Inc()
}

func (m *ControllerMetrics) ObserveSent(err error) {
	if m == nil {
		return
	}
	m.MessagesTx.WithLabelValues(result(err)).Inc()
}

func (m *ControllerMetrics) ObserveWatchdogTrip() {
	if m == nil {
		return
	}
	m.WatchdogTrips.Inc()
}

func (m *ControllerMetrics) ObserveSessionEnabled(enabled bool) {
	if m == nil {
		return
	}
	m.SessionEnabled.Set(boolGauge(enabled))
}

// RegisterTransport exposes the count of inbound datagrams discarded by the
// transport's rate limit.
func RegisterTransport(reg prometheus.Registerer, dropped func() uint64) prometheus.CounterFunc {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "udp_datagrams_dropped_total",
		Help:      "Inbound datagrams discarded by the rate limit.",
	}, func() float64 { return float64(dropped()) })
	reg.MustRegister(c)
	return c
}
