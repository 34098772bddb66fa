// Package watcher runs the detection loop: one goroutine polls the camera
// and detector, drives the gate relay, feeds the capture policy engine, and
// maintains the status snapshot the dashboard reads.
//
// Observations are strictly serial. All engine evaluations happen on the
// loop goroutine; manual control only flips the override flag and the relay,
// and the engine observes the edge on the next cycle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/safesite-labs/ppe-gate-monitor/internal/camera"
	"github.com/safesite-labs/ppe-gate-monitor/internal/capture"
	"github.com/safesite-labs/ppe-gate-monitor/internal/detector"
	"github.com/safesite-labs/ppe-gate-monitor/internal/eventlog"
	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
	"github.com/safesite-labs/ppe-gate-monitor/internal/metrics"
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
	"github.com/safesite-labs/ppe-gate-monitor/internal/relay"
)

// Snapshotter persists a capture event. Implemented by capture.Sink.
type Snapshotter interface {
	Save(event *policy.CaptureEvent, frame []byte) (string, error)
}

// Status is the dashboard status payload, polled every few seconds.
type Status struct {
	PPEStatus       policy.PPEStatus  `json:"ppe_status"`
	Relay           policy.RelayState `json:"relay"`
	Helmet          bool              `json:"helmet"`
	Vest            bool              `json:"vest"`
	Gloves          bool              `json:"gloves"`
	OverrideActive  bool              `json:"override_active"`
	CameraConnected bool              `json:"camera_connected"`
	Degraded        bool              `json:"degraded"`
	LastCapture     string            `json:"last_capture,omitempty"`
	LastUpdated     string            `json:"last_updated"`
}

// Options configures a Watcher.
type Options struct {
	PollInterval  time.Duration
	PruneInterval time.Duration
	PruneMaxAge   time.Duration
	PruneMaxFiles int
}

// Watcher owns the detection loop and the gate state.
type Watcher struct {
	camera   camera.Source
	detector detector.Detector
	relay    relay.Controller
	engine   *policy.Engine
	log      *eventlog.Log
	sink     Snapshotter
	metrics  *metrics.Metrics
	opts     Options

	mu       sync.Mutex
	override bool
	status   Status

	detectorDown bool
	nextPrune    time.Time
}

// New creates a watcher. The relay's current position seeds the status
// snapshot.
func New(cam camera.Source, det detector.Detector, rel relay.Controller,
	log *eventlog.Log, sink Snapshotter, m *metrics.Metrics, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}
	w := &Watcher{
		camera:   cam,
		detector: det,
		relay:    rel,
		engine:   policy.NewEngine(),
		log:      log,
		sink:     sink,
		metrics:  m,
		opts:     opts,
		status: Status{
			PPEStatus:   policy.PPEUnknown,
			Relay:       rel.State(),
			Degraded:    true,
			LastUpdated: time.Now().Format("15:04:05"),
		},
	}
	m.SetRelay(rel.State())
	return w
}

// Run executes the detection loop until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	logger.Info("Watcher", "Detection loop started (interval %s)", w.opts.PollInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watcher", "Detection loop stopped")
			return
		case <-ticker.C:
			w.cycle(time.Now())
		}
	}
}

// cycle runs one detection cycle. Every failure path degrades gracefully:
// the dashboard keeps its last-known state and a degraded flag, the loop
// never stops.
func (w *Watcher) cycle(now time.Time) {
	w.metrics.Cycles.Add(1)
	w.maybePrune(now)

	frame, haveFrame := w.camera.Frame()
	if !haveFrame {
		w.metrics.CameraStale.Add(1)
		w.updateStatus(now, detector.Result{Status: policy.PPEUnknown}, true)
		return
	}

	result, err := w.detector.Detect(frame)
	if err != nil {
		w.metrics.DetectorErrors.Add(1)
		w.noteDetectorDown(err)
		w.updateStatus(now, detector.Result{Status: policy.PPEUnknown}, true)
		return
	}
	w.noteDetectorUp()

	w.actuate(result.Status, now)

	obs := policy.Observation{
		PPE:            result.Status,
		Relay:          w.relay.State(),
		OverrideActive: w.overrideActive(),
		Timestamp:      now,
	}
	event, err := w.engine.Evaluate(obs)
	if err != nil {
		w.metrics.RejectedObservations.Add(1)
		logger.Error("Watcher", "Observation rejected: %v", err)
		w.updateStatus(now, result, true)
		return
	}

	if event != nil {
		w.handleCapture(event, frame)
	}
	w.updateStatus(now, result, false)
}

// actuate applies automatic gate control: PPE OK opens the gate, a violation
// closes it, UNKNOWN leaves it alone. Manual override suspends all of it.
func (w *Watcher) actuate(status policy.PPEStatus, now time.Time) {
	if w.overrideActive() {
		return
	}

	var target policy.RelayState
	switch status {
	case policy.PPEOK:
		target = policy.RelayOpen
	case policy.PPENotOK:
		target = policy.RelayClosed
	default:
		return
	}

	previous := w.relay.State()
	if previous == target {
		return
	}
	if err := w.relay.Set(target); err != nil {
		logger.Error("Watcher", "Relay actuation failed: %v", err)
		w.appendLog(now, eventlog.TypeError, fmt.Sprintf("Relay actuation failed: %v", err))
		return
	}
	w.metrics.SetRelay(target)

	if target == policy.RelayOpen {
		w.appendLog(now, eventlog.TypeSuccess, "Gate opened - PPE verified")
	} else {
		w.appendLog(now, eventlog.TypeWarning, "Gate closed - PPE violation detected")
	}
}

func (w *Watcher) handleCapture(event *policy.CaptureEvent, frame []byte) {
	name, err := w.sink.Save(event, frame)
	if err != nil {
		// A failed photo write is not fatal: the event is still logged,
		// with a degraded-capture marker.
		w.metrics.CaptureWriteErrors.Add(1)
		var werr *capture.WriteError
		if errors.As(err, &werr) {
			logger.Error("Watcher", "Snapshot write failed: %v", werr)
		} else {
			logger.Error("Watcher", "Snapshot write failed: %v", err)
		}
		w.appendLog(event.Timestamp, eventlog.TypeError,
			fmt.Sprintf("%s (snapshot failed)", captureMessage(event.Reason)))
	} else {
		w.appendLog(event.Timestamp, captureSeverity(event.Reason),
			fmt.Sprintf("%s (snapshot %s)", captureMessage(event.Reason), name))
	}
	w.metrics.CaptureFired(event.Reason)

	w.mu.Lock()
	w.status.LastCapture = string(event.Reason)
	w.mu.Unlock()
}

// SetRelay forces the relay to the given position under manual override.
func (w *Watcher) SetRelay(state policy.RelayState, supervisor string) error {
	if err := w.relay.Set(state); err != nil {
		return err
	}
	w.metrics.SetRelay(state)

	w.mu.Lock()
	wasOverride := w.override
	w.override = true
	w.status.OverrideActive = true
	w.status.Relay = state
	w.mu.Unlock()
	w.metrics.SetOverride(true)

	who := supervisor
	if who == "" {
		who = "supervisor"
	}
	if !wasOverride {
		w.appendLog(time.Now(), eventlog.TypeWarning,
			fmt.Sprintf("Manual override enabled by %s - relay forced %s", who, state))
	} else {
		w.appendLog(time.Now(), eventlog.TypeInfo,
			fmt.Sprintf("Manual relay set to %s by %s", state, who))
	}
	return nil
}

// ToggleRelay flips the relay under manual override and returns the new
// position.
func (w *Watcher) ToggleRelay(supervisor string) (policy.RelayState, error) {
	target := policy.RelayOpen
	if w.relay.State() == policy.RelayOpen {
		target = policy.RelayClosed
	}
	if err := w.SetRelay(target, supervisor); err != nil {
		return "", err
	}
	return target, nil
}

// Restore returns the gate to automatic control.
func (w *Watcher) Restore(supervisor string) {
	w.mu.Lock()
	wasOverride := w.override
	w.override = false
	w.status.OverrideActive = false
	w.mu.Unlock()
	w.metrics.SetOverride(false)

	if wasOverride {
		who := supervisor
		if who == "" {
			who = "supervisor"
		}
		w.appendLog(time.Now(), eventlog.TypeInfo,
			fmt.Sprintf("Automatic control restored by %s", who))
	}
}

// Status returns the latest status snapshot.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Events returns the activity log, oldest first.
func (w *Watcher) Events() []eventlog.Entry {
	return w.log.Entries()
}

func (w *Watcher) overrideActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.override
}

func (w *Watcher) updateStatus(now time.Time, result detector.Result, degraded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.Relay = w.relay.State()
	w.status.OverrideActive = w.override
	w.status.CameraConnected = w.camera.Connected()
	w.status.Degraded = degraded
	w.status.LastUpdated = now.Format("15:04:05")

	if !degraded {
		w.status.PPEStatus = result.Status
		w.status.Helmet = result.Helmet
		w.status.Vest = result.Vest
		w.status.Gloves = result.Gloves
	}
}

func (w *Watcher) appendLog(at time.Time, entryType, message string) {
	w.log.AppendAt(at, entryType, message)
	w.metrics.EventsLogged.Add(1)
}

func (w *Watcher) noteDetectorDown(err error) {
	if w.detectorDown {
		return
	}
	w.detectorDown = true
	logger.Warn("Watcher", "Detector unavailable: %v", err)
	w.appendLog(time.Now(), eventlog.TypeError, "Detector unavailable - running degraded")
}

func (w *Watcher) noteDetectorUp() {
	if !w.detectorDown {
		return
	}
	w.detectorDown = false
	w.appendLog(time.Now(), eventlog.TypeInfo, "Detector recovered")
}

func (w *Watcher) maybePrune(now time.Time) {
	if w.opts.PruneMaxAge <= 0 && w.opts.PruneMaxFiles <= 0 {
		return
	}
	if now.Before(w.nextPrune) {
		return
	}
	w.nextPrune = now.Add(w.opts.PruneInterval)

	if sink, ok := w.sink.(*capture.Sink); ok {
		if _, err := sink.Prune(w.opts.PruneMaxAge, w.opts.PruneMaxFiles); err != nil {
			logger.Warn("Watcher", "Snapshot prune failed: %v", err)
		}
	}
}

func captureMessage(reason policy.TriggerReason) string {
	switch reason {
	case policy.ReasonGateClosedViolation:
		return "Violation capture: gate closed on missing PPE"
	case policy.ReasonOverrideOn:
		return "Capture: manual override engaged"
	case policy.ReasonOverrideRestored:
		return "Capture: automatic control restored"
	default:
		return string(reason)
	}
}

func captureSeverity(reason policy.TriggerReason) string {
	if reason == policy.ReasonGateClosedViolation {
		return eventlog.TypeWarning
	}
	return eventlog.TypeInfo
}
