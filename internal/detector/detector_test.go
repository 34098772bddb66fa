package detector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

func det(class string, conf float64) Detection {
	return Detection{Class: class, Confidence: conf, BBox: BoundingBox{X: 10, Y: 20, Width: 30, Height: 40}}
}

func TestClassifyFullSetIsOK(t *testing.T) {
	r := Classify([]Detection{det("helmet", 0.9), det("vest", 0.8), det("gloves", 0.7)})
	if r.Status != policy.PPEOK {
		t.Fatalf("status = %q, want OK", r.Status)
	}
	if !r.Helmet || !r.Vest || !r.Gloves {
		t.Fatalf("flags = %v %v %v, want all true", r.Helmet, r.Vest, r.Gloves)
	}
	if r.HasViolation {
		t.Fatalf("HasViolation = true for full set")
	}
}

func TestClassifyExplicitViolationWins(t *testing.T) {
	// A no-* class marks a violation even if other equipment is present.
	r := Classify([]Detection{det("helmet", 0.9), det("vest", 0.9), det("gloves", 0.9), det("no-helmet", 0.95)})
	if r.Status != policy.PPENotOK {
		t.Fatalf("status = %q, want NOT_OK", r.Status)
	}
	if !r.HasViolation {
		t.Fatalf("HasViolation = false")
	}
}

func TestClassifyPartialSetIsUnknown(t *testing.T) {
	r := Classify([]Detection{det("helmet", 0.9)})
	if r.Status != policy.PPEUnknown {
		t.Fatalf("status = %q, want UNKNOWN", r.Status)
	}
}

func TestClassifyAliases(t *testing.T) {
	r := Classify([]Detection{det("helmet", 0.9), det("safety vest", 0.8), det("glove", 0.7)})
	if r.Status != policy.PPEOK {
		t.Fatalf("status with alias classes = %q, want OK", r.Status)
	}
}

func TestClassifyEmptyIsUnknown(t *testing.T) {
	if r := Classify(nil); r.Status != policy.PPEUnknown {
		t.Fatalf("status = %q, want UNKNOWN", r.Status)
	}
}

func TestClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			f.Close()
		}
		json.NewEncoder(w).Encode(inferenceResponse{Detections: []Detection{
			det("helmet", 0.92),
			det("vest", 0.81),
			det("gloves", 0.40), // below threshold
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.6)
	r, err := c.Detect([]byte("fake-jpeg"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(r.Detections) != 2 {
		t.Fatalf("detections after threshold = %d, want 2", len(r.Detections))
	}
	if r.Status != policy.PPEUnknown {
		t.Fatalf("status = %q, want UNKNOWN (gloves filtered out)", r.Status)
	}
}

func TestClientDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.6)
	if _, err := c.Detect([]byte("fake-jpeg")); err == nil {
		t.Fatalf("expected error on 503")
	}
}
