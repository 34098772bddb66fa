package monitor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/safesite-labs/ppe-gate-monitor/internal/auth"
	"github.com/safesite-labs/ppe-gate-monitor/internal/config"
	"github.com/safesite-labs/ppe-gate-monitor/internal/detector"
	"github.com/safesite-labs/ppe-gate-monitor/internal/eventlog"
	"github.com/safesite-labs/ppe-gate-monitor/internal/metrics"
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
	"github.com/safesite-labs/ppe-gate-monitor/internal/relay"
	"github.com/safesite-labs/ppe-gate-monitor/internal/watcher"
)

type stubCamera struct{ frame []byte }

func (s *stubCamera) Frame() ([]byte, bool) { return s.frame, s.frame != nil }
func (s *stubCamera) Connected() bool       { return s.frame != nil }

type stubDetector struct{ result detector.Result }

func (s *stubDetector) Detect([]byte) (detector.Result, error) { return s.result, nil }

type stubSink struct{}

func (stubSink) Save(*policy.CaptureEvent, []byte) (string, error) { return "snap.jpg", nil }

func testServer(t *testing.T, withAuth bool) (*Server, *watcher.Watcher, *eventlog.Log) {
	t.Helper()

	authCfg := config.AuthConfig{}
	if withAuth {
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		authCfg = config.AuthConfig{
			JWTSecret:   "test-secret",
			Supervisors: []config.Supervisor{{Username: "aiten", PasswordHash: string(hash)}},
		}
	}
	am, err := auth.NewManager(authCfg)
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.ViolationsDir = t.TempDir()

	cam := &stubCamera{frame: []byte("jpeg")}
	log := eventlog.New(20)
	w := watcher.New(cam, &stubDetector{result: detector.Result{Status: policy.PPEUnknown}},
		relay.NewSim(), log, stubSink{}, metrics.New(), watcher.Options{PollInterval: time.Second})

	return NewServer(cfg, w, am, cam), w, log
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec, rec.Body.Bytes()
}

func postJSON(t *testing.T, h http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s, _, _ := testServer(t, false)
	rec, body := get(t, s.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("GET / content-type = %q", rec.Header().Get("Content-Type"))
	}
	html := string(body)
	for _, needle := range []string{"<title>PPE Gate Monitor</title>", "/status", "/events", "/control/relay", "/stream"} {
		if !strings.Contains(html, needle) {
			t.Fatalf("GET / missing %q", needle)
		}
	}
}

func TestStatusPayload(t *testing.T) {
	s, _, _ := testServer(t, false)
	rec, body := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v\nbody=%s", err, body)
	}
	for _, field := range []string{"ppe_status", "relay", "helmet", "vest", "gloves",
		"override_active", "camera_connected", "degraded", "last_updated"} {
		if _, ok := payload[field]; !ok {
			t.Fatalf("status payload missing %q", field)
		}
	}
	if payload["relay"] != "CLOSED" {
		t.Fatalf("relay = %v, want CLOSED at startup", payload["relay"])
	}
}

func TestEventsNewestFirst(t *testing.T) {
	s, _, log := testServer(t, false)
	log.AppendAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), eventlog.TypeInfo, "older")
	log.AppendAt(time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), eventlog.TypeInfo, "newer")

	rec, body := get(t, s.Handler(), "/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /events = %d", rec.Code)
	}

	var entries []eventlog.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Message != "newer" || entries[1].Message != "older" {
		t.Fatalf("order = [%s, %s], want newest first", entries[0].Message, entries[1].Message)
	}
}

func TestControlRelayTogglesUnderOverride(t *testing.T) {
	s, w, _ := testServer(t, false)
	h := s.Handler()

	rec := postJSON(t, h, "/control/relay", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /control/relay = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["relay"] != "OPEN" {
		t.Fatalf("relay after toggle = %v, want OPEN", payload["relay"])
	}
	if payload["override_active"] != true {
		t.Fatalf("override_active = %v", payload["override_active"])
	}
	if !w.Status().OverrideActive {
		t.Fatalf("watcher override not set")
	}

	rec = postJSON(t, h, "/control/restore", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /control/restore = %d", rec.Code)
	}
	if w.Status().OverrideActive {
		t.Fatalf("override still active after restore")
	}
}

func TestControlRequiresAuth(t *testing.T) {
	s, _, _ := testServer(t, true)
	h := s.Handler()

	if rec := postJSON(t, h, "/control/relay", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated toggle = %d, want 401", rec.Code)
	}

	// Login, then retry with the token.
	rec := postJSON(t, h, "/api/auth/login",
		map[string]string{"username": "aiten", "password": "hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var login map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rec = postJSON(t, h, "/control/relay", nil,
		map[string]string{"Authorization": "Bearer " + login["token"]})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated toggle = %d", rec.Code)
	}
}

func TestLoginRejected(t *testing.T) {
	s, _, _ := testServer(t, true)
	rec := postJSON(t, s.Handler(), "/api/auth/login",
		map[string]string{"username": "aiten", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", rec.Code)
	}
}

func TestViolationServing(t *testing.T) {
	s, _, _ := testServer(t, false)
	h := s.Handler()

	name := "gate_closed_violation_20260314_103015.jpg"
	if err := os.WriteFile(filepath.Join(s.cfg.ViolationsDir, name), []byte("jpegdata"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	rec, body := get(t, h, "/violations/"+name)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET snapshot = %d", rec.Code)
	}
	if string(body) != "jpegdata" {
		t.Fatalf("snapshot body = %q", body)
	}

	if rec, _ := get(t, h, "/violations/missing.jpg"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot = %d, want 404", rec.Code)
	}
	if rec, _ := get(t, h, "/violations/notes.txt"); rec.Code != http.StatusNotFound {
		t.Fatalf("non-jpg = %d, want 404", rec.Code)
	}
}

func TestStatusStreamSendsEvent(t *testing.T) {
	s, _, _ := testServer(t, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/api/status/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content-type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read sse: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("sse line = %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &payload); err != nil {
		t.Fatalf("decode sse payload: %v", err)
	}
	if _, ok := payload["ppe_status"]; !ok {
		t.Fatalf("sse payload missing ppe_status")
	}
}

func TestStreamServesMJPEG(t *testing.T) {
	s, _, _ := testServer(t, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "multipart/x-mixed-replace") {
		t.Fatalf("content-type = %q", ct)
	}

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	if err != nil || n == 0 {
		t.Fatalf("read stream: n=%d err=%v", n, err)
	}
	if !bytes.Contains(buf[:n], []byte("--frame")) {
		t.Fatalf("stream start = %q, want multipart boundary", buf[:n])
	}
}
