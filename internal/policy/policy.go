// Package policy implements the violation capture policy: the rule set
// deciding when a photographic record of the gate is written to disk.
//
// The engine is edge-triggered. It compares each observation against the
// previous relay and override state and fires only on transitions, never on
// steady-state repetition, which bounds capture volume regardless of how
// fast the detection loop polls.
package policy

import (
	"fmt"
	"sync"
	"time"
)

// PPEStatus is the detector's verdict for the current cycle.
type PPEStatus string

const (
	PPEOK      PPEStatus = "OK"
	PPENotOK   PPEStatus = "NOT_OK"
	PPEUnknown PPEStatus = "UNKNOWN"
)

// RelayState is the gate relay position.
type RelayState string

const (
	RelayOpen   RelayState = "OPEN"
	RelayClosed RelayState = "CLOSED"
)

// TriggerReason names the transition that caused a capture.
type TriggerReason string

const (
	ReasonGateClosedViolation TriggerReason = "GATE_CLOSED_VIOLATION"
	ReasonOverrideOn          TriggerReason = "MANUAL_OVERRIDE_ON"
	ReasonOverrideRestored    TriggerReason = "MANUAL_OVERRIDE_RESTORED"
)

// Observation is one input snapshot from the detection cycle.
type Observation struct {
	PPE            PPEStatus  `json:"ppe_status"`
	Relay          RelayState `json:"relay"`
	OverrideActive bool       `json:"override_active"`
	Timestamp      time.Time  `json:"timestamp"`
}

// CaptureEvent is emitted when a trigger condition holds for the current
// observation relative to the previous state.
type CaptureEvent struct {
	Reason      TriggerReason `json:"trigger_reason"`
	Timestamp   time.Time     `json:"timestamp"`
	Observation Observation   `json:"observation"`
}

// ValidationError reports a malformed observation. The engine performs no
// state update when it returns one, so a retried observation is evaluated
// against the same previous state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

// Engine holds the state carried across observations. The zero value is not
// usable; construct with NewEngine.
//
// Evaluate is a single atomic read-modify-write; the mutex makes the engine
// safe if the host ever delivers observations from more than one goroutine.
type Engine struct {
	mu           sync.Mutex
	prevRelay    *RelayState // nil until the first valid observation
	prevOverride bool
	lastReason   TriggerReason // empty if no capture has fired yet
}

// NewEngine returns an engine with no previous state. The first observation
// it evaluates never produces a capture: there is no prior edge to compare
// against.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate classifies one observation against the stored previous state and
// returns a CaptureEvent if a trigger condition holds, nil otherwise.
//
// Exactly one of the three trigger reasons can fire per observation; the
// override edges take precedence over the relay edge since a manual toggle
// may drive the relay in the same cycle.
func (e *Engine) Evaluate(obs Observation) (*CaptureEvent, error) {
	if err := validate(obs); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var event *CaptureEvent

	switch {
	case e.prevRelay == nil:
		// First observation of the process lifetime: record state only.

	case !e.prevOverride && obs.OverrideActive:
		event = e.capture(ReasonOverrideOn, obs)

	case e.prevOverride && !obs.OverrideActive:
		event = e.capture(ReasonOverrideRestored, obs)

	case *e.prevRelay == RelayOpen && obs.Relay == RelayClosed &&
		!obs.OverrideActive && obs.PPE == PPENotOK:
		event = e.capture(ReasonGateClosedViolation, obs)
	}

	relay := obs.Relay
	e.prevRelay = &relay
	e.prevOverride = obs.OverrideActive

	return event, nil
}

// LastReason returns the reason of the most recent capture, or "" if none
// has fired since the engine was constructed.
func (e *Engine) LastReason() TriggerReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReason
}

func (e *Engine) capture(reason TriggerReason, obs Observation) *CaptureEvent {
	e.lastReason = reason
	return &CaptureEvent{
		Reason:      reason,
		Timestamp:   obs.Timestamp,
		Observation: obs,
	}
}

func validate(obs Observation) error {
	switch obs.PPE {
	case PPEOK, PPENotOK, PPEUnknown:
	default:
		return &ValidationError{Field: "ppe_status", Reason: fmt.Sprintf("unknown value %q", obs.PPE)}
	}
	switch obs.Relay {
	case RelayOpen, RelayClosed:
	default:
		return &ValidationError{Field: "relay", Reason: fmt.Sprintf("unknown value %q", obs.Relay)}
	}
	if obs.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	return nil
}
