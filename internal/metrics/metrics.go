package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

// Metrics holds all application metrics
type Metrics struct {
	// Detection cycle counters
	Cycles         atomic.Uint64
	DetectorErrors atomic.Uint64
	CameraStale    atomic.Uint64

	// Capture policy counters
	ViolationCaptures        atomic.Uint64
	OverrideOnCaptures       atomic.Uint64
	OverrideRestoredCaptures atomic.Uint64
	CaptureWriteErrors       atomic.Uint64
	RejectedObservations     atomic.Uint64

	// Gate state (0/1 gauges)
	RelayClosed    atomic.Uint64
	OverrideActive atomic.Uint64

	// Activity log
	EventsLogged atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"gate_detection_cycles_total", "Total detection cycles evaluated", m.Cycles.Load},
		{"gate_detector_errors_total", "Total detector/inference errors", m.DetectorErrors.Load},
		{"gate_camera_stale_cycles_total", "Cycles skipped because no camera frame was available", m.CameraStale.Load},
		{"gate_violation_captures_total", "Snapshots captured for gate-closed violations", m.ViolationCaptures.Load},
		{"gate_override_on_captures_total", "Snapshots captured for manual override activation", m.OverrideOnCaptures.Load},
		{"gate_override_restored_captures_total", "Snapshots captured for manual override restore", m.OverrideRestoredCaptures.Load},
		{"gate_capture_write_errors_total", "Snapshot writes that failed", m.CaptureWriteErrors.Load},
		{"gate_rejected_observations_total", "Observations rejected by the capture policy", m.RejectedObservations.Load},
		{"gate_relay_closed", "Relay state (0=open, 1=closed)", m.RelayClosed.Load},
		{"gate_override_active", "Manual override state (0=automatic, 1=manual)", m.OverrideActive.Load},
		{"gate_events_logged_total", "Entries appended to the activity log", m.EventsLogged.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// CaptureFired counts one emitted capture event by reason.
func (m *Metrics) CaptureFired(reason policy.TriggerReason) {
	switch reason {
	case policy.ReasonGateClosedViolation:
		m.ViolationCaptures.Add(1)
	case policy.ReasonOverrideOn:
		m.OverrideOnCaptures.Add(1)
	case policy.ReasonOverrideRestored:
		m.OverrideRestoredCaptures.Add(1)
	}
}

// SetRelay records the current relay position.
func (m *Metrics) SetRelay(state policy.RelayState) {
	if state == policy.RelayClosed {
		m.RelayClosed.Store(1)
	} else {
		m.RelayClosed.Store(0)
	}
}

// SetOverride records whether manual override is active.
func (m *Metrics) SetOverride(active bool) {
	if active {
		m.OverrideActive.Store(1)
	} else {
		m.OverrideActive.Store(0)
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
