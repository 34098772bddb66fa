// Package capture persists violation snapshots. Each capture event becomes
// one annotated JPEG on disk, keyed by timestamp and trigger reason.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

// WriteError reports a failed snapshot write. A failed write is not fatal:
// the caller still records the event, with a degraded marker.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("capture write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Sink writes annotated violation snapshots into a directory.
type Sink struct {
	dir     string
	quality int
}

// NewSink creates the snapshot directory if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create violations dir: %w", err)
	}
	return &Sink{dir: dir, quality: 85}, nil
}

// Save decodes the frame, stamps the trigger reason and timestamp onto it,
// and writes it to disk. It returns the stored filename, or a *WriteError.
func (s *Sink) Save(event *policy.CaptureEvent, frame []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.jpg",
		strings.ToLower(string(event.Reason)),
		event.Timestamp.Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", &WriteError{Path: path, Err: fmt.Errorf("decode frame: %w", err)}
	}

	label := fmt.Sprintf("%s  %s  ppe=%s relay=%s",
		event.Reason,
		event.Timestamp.Format("2006-01-02 15:04:05"),
		event.Observation.PPE,
		event.Observation.Relay)
	annotated := annotate(img, label)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, annotated, &jpeg.Options{Quality: s.quality}); err != nil {
		return "", &WriteError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	logger.Info("Capture", "Snapshot saved: %s", name)
	return name, nil
}

// Dir returns the snapshot directory.
func (s *Sink) Dir() string { return s.dir }

// annotate draws a label strip along the top edge of the frame.
func annotate(src image.Image, label string) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	stripHeight := face.Height + 8
	strip := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+stripHeight)
	draw.Draw(dst, strip, image.NewUniform(color.RGBA{A: 200}), image.Point{}, draw.Over)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 60, B: 60, A: 255}),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(bounds.Min.X + 6),
			Y: fixed.I(bounds.Min.Y + face.Ascent + 4),
		},
	}
	drawer.DrawString(label)
	return dst
}
