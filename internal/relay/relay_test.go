package relay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

func TestSimStartsClosed(t *testing.T) {
	s := NewSim()
	if got := s.State(); got != policy.RelayClosed {
		t.Fatalf("initial state = %s, want CLOSED", got)
	}
}

func TestSimSet(t *testing.T) {
	s := NewSim()
	if err := s.Set(policy.RelayOpen); err != nil {
		t.Fatalf("Set(OPEN): %v", err)
	}
	if got := s.State(); got != policy.RelayOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}
	// Setting the same state is a no-op, not an error.
	if err := s.Set(policy.RelayOpen); err != nil {
		t.Fatalf("Set(OPEN) twice: %v", err)
	}
}

func fakeSysfs(t *testing.T, pin int) string {
	t.Helper()
	dir := t.TempDir()
	pinDir := filepath.Join(dir, "gpio17")
	if err := os.MkdirAll(pinDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"direction", "value"} {
		if err := os.WriteFile(filepath.Join(pinDir, name), nil, 0o644); err != nil {
			t.Fatalf("touch %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "export"), nil, 0o644); err != nil {
		t.Fatalf("touch export: %v", err)
	}
	return dir
}

func readPin(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "gpio17", "value"))
	if err != nil {
		t.Fatalf("read value: %v", err)
	}
	return string(data)
}

func TestGPIOStartsClosed(t *testing.T) {
	dir := fakeSysfs(t, 17)
	g, err := NewGPIO(dir, 17)
	if err != nil {
		t.Fatalf("NewGPIO: %v", err)
	}
	if got := g.State(); got != policy.RelayClosed {
		t.Fatalf("initial state = %s, want CLOSED", got)
	}
	if v := readPin(t, dir); v != "0" {
		t.Fatalf("pin value = %q, want 0", v)
	}
}

func TestGPIOSetWritesValueFile(t *testing.T) {
	dir := fakeSysfs(t, 17)
	g, err := NewGPIO(dir, 17)
	if err != nil {
		t.Fatalf("NewGPIO: %v", err)
	}

	if err := g.Set(policy.RelayOpen); err != nil {
		t.Fatalf("Set(OPEN): %v", err)
	}
	if v := readPin(t, dir); v != "1" {
		t.Fatalf("pin value = %q, want 1", v)
	}

	if err := g.Set(policy.RelayClosed); err != nil {
		t.Fatalf("Set(CLOSED): %v", err)
	}
	if v := readPin(t, dir); v != "0" {
		t.Fatalf("pin value = %q, want 0", v)
	}
}

func TestGPIODirectionConfigured(t *testing.T) {
	dir := fakeSysfs(t, 17)
	if _, err := NewGPIO(dir, 17); err != nil {
		t.Fatalf("NewGPIO: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "gpio17", "direction"))
	if err != nil {
		t.Fatalf("read direction: %v", err)
	}
	if string(data) != "out" {
		t.Fatalf("direction = %q, want out", data)
	}
}
