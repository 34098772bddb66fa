package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

func testEvent() *policy.CaptureEvent {
	ts := time.Date(2026, 3, 14, 10, 30, 15, 0, time.UTC)
	return &policy.CaptureEvent{
		Reason:    policy.ReasonGateClosedViolation,
		Timestamp: ts,
		Observation: policy.Observation{
			PPE:       policy.PPENotOK,
			Relay:     policy.RelayClosed,
			Timestamp: ts,
		},
	}
}

func TestSaveWritesAnnotatedSnapshot(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	name, err := sink.Save(testEvent(), testFrame(t))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(name, "gate_closed_violation_") || !strings.HasSuffix(name, ".jpg") {
		t.Fatalf("snapshot name = %q", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("snapshot is not a valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Fatalf("snapshot bounds = %v", img.Bounds())
	}

	// The label strip darkens the top edge; the source frame is a flat
	// blue, so a darkened pixel proves the annotation was drawn.
	r, g, b, _ := img.At(2, 2).RGBA()
	if r>>8 >= 40 && g>>8 >= 120 && b>>8 >= 200 {
		t.Fatalf("top-left pixel unchanged (%d,%d,%d); label strip missing", r>>8, g>>8, b>>8)
	}
}

func TestSaveRejectsCorruptFrame(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	_, err = sink.Save(testEvent(), []byte("not a jpeg"))
	if err == nil {
		t.Fatalf("expected error for corrupt frame")
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error type = %T, want *WriteError", err)
	}
}

func TestPruneByCount(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	now := time.Now()
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, filenameAt(i))
		if err := os.WriteFile(path, []byte("jpg"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := now.Add(time.Duration(i-6) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := sink.Prune(0, 4)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 4 {
		t.Fatalf("files left = %d, want 4", len(entries))
	}
	// The two oldest are gone.
	for _, e := range entries {
		if e.Name() == filenameAt(0) || e.Name() == filenameAt(1) {
			t.Fatalf("oldest file %s survived prune", e.Name())
		}
	}
}

func TestPruneByAge(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	fresh := filepath.Join(dir, "manual_override_on_20260314_103015.jpg")
	stale := filepath.Join(dir, "manual_override_on_20260101_000000.jpg")
	for _, path := range []string{fresh, stale} {
		if err := os.WriteFile(path, []byte("jpg"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := sink.Prune(24*time.Hour, 0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh snapshot removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale snapshot survived")
	}
}

func filenameAt(i int) string {
	return time.Date(2026, 3, 14, 10, i, 0, 0, time.UTC).Format("gate_closed_violation_20060102_150405.jpg")
}
