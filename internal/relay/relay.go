// Package relay drives the gate relay: one digital output pin. A simulated
// controller stands in when the hardware is absent, so the rest of the
// system behaves identically on a development machine.
package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

// Controller observes and drives the gate relay.
type Controller interface {
	State() policy.RelayState
	Set(state policy.RelayState) error
}

// Sim is an in-memory relay used when GPIO hardware is not available.
// The gate starts CLOSED, matching the hardware controller.
type Sim struct {
	mu    sync.Mutex
	state policy.RelayState
}

// NewSim creates a simulated relay in the CLOSED position.
func NewSim() *Sim {
	return &Sim{state: policy.RelayClosed}
}

// State returns the current relay position.
func (s *Sim) State() policy.RelayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set moves the relay. Setting the current position is a no-op.
func (s *Sim) Set(state policy.RelayState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state {
		return nil
	}
	s.state = state
	logger.Debug("Relay", "[SIM] relay -> %s", state)
	return nil
}

// GPIO drives the relay through the sysfs GPIO interface. OPEN energizes
// the pin (value 1), CLOSED de-energizes it (value 0).
type GPIO struct {
	mu      sync.Mutex
	pin     int
	valueFn string
	state   policy.RelayState
}

// NewGPIO exports the pin under sysfsDir, configures it as an output and
// closes the gate.
func NewGPIO(sysfsDir string, pin int) (*GPIO, error) {
	pinDir := filepath.Join(sysfsDir, fmt.Sprintf("gpio%d", pin))

	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		export := filepath.Join(sysfsDir, "export")
		if err := os.WriteFile(export, []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}

	direction := filepath.Join(pinDir, "direction")
	if err := os.WriteFile(direction, []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}

	g := &GPIO{
		pin:     pin,
		valueFn: filepath.Join(pinDir, "value"),
	}
	if err := g.Set(policy.RelayClosed); err != nil {
		return nil, err
	}
	logger.Info("Relay", "GPIO relay ready on pin %d", pin)
	return g, nil
}

// State returns the last commanded relay position.
func (g *GPIO) State() policy.RelayState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Set writes the pin value for the requested position.
func (g *GPIO) Set(state policy.RelayState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == state {
		return nil
	}

	value := "0"
	if state == policy.RelayOpen {
		value = "1"
	}
	if err := os.WriteFile(g.valueFn, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write gpio %d value: %w", g.pin, err)
	}
	g.state = state
	return nil
}
