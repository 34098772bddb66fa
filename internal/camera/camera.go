// Package camera acquires JPEG frames from the gate camera. Frames arrive as
// an MJPEG (multipart/x-mixed-replace) HTTP stream; only the most recent
// frame is kept.
package camera

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
)

// Source supplies the latest camera frame.
type Source interface {
	// Frame returns the most recent JPEG frame; ok is false when no frame
	// has been received yet.
	Frame() ([]byte, bool)
	// Connected reports whether the upstream camera is currently streaming.
	Connected() bool
}

// MJPEGSource reads an MJPEG stream from an IP camera URL and keeps the
// latest frame. On stream drop it reconnects after a fixed interval.
type MJPEGSource struct {
	url           string
	retryInterval time.Duration
	client        *http.Client

	mu        sync.RWMutex
	frame     []byte
	connected bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMJPEGSource creates a source for the given stream URL. Call Start to
// begin reading.
func NewMJPEGSource(url string, retryInterval time.Duration) *MJPEGSource {
	if retryInterval <= 0 {
		retryInterval = 10 * time.Second
	}
	return &MJPEGSource{
		url:           url,
		retryInterval: retryInterval,
		client:        &http.Client{}, // no timeout: the stream is long-lived
	}
}

// Start launches the capture loop.
func (s *MJPEGSource) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop ends the capture loop and waits for it to exit.
func (s *MJPEGSource) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Frame returns the most recent JPEG frame.
func (s *MJPEGSource) Frame() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// Connected reports whether the camera stream is currently up.
func (s *MJPEGSource) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MJPEGSource) loop(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.readStream(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Camera", "Stream dropped (%v), reconnecting in %s", err, s.retryInterval)
		}
		s.setConnected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryInterval):
		}
	}
}

func (s *MJPEGSource) readStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("camera status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	logger.Info("Camera", "Connected to stream: %s", s.url)
	s.setConnected(true)

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			return fmt.Errorf("next part: %w", err)
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		s.mu.Lock()
		s.frame = data
		s.mu.Unlock()
	}
}

func (s *MJPEGSource) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
