// Package detector adapts the external PPE detection model. The model is a
// black box behind an HTTP inference endpoint; this package only maps its
// per-frame detections onto a PPE status.
package detector

import (
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
)

// BoundingBox is the pixel region of one detected object.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one object reported by the model.
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// Result is the per-cycle verdict derived from the model's detections.
type Result struct {
	Status       policy.PPEStatus `json:"ppe_status"`
	Helmet       bool             `json:"helmet"`
	Vest         bool             `json:"vest"`
	Gloves       bool             `json:"gloves"`
	HasViolation bool             `json:"has_violation"`
	Detections   []Detection      `json:"detections"`
}

// Detector supplies a PPE result for one camera frame.
type Detector interface {
	Detect(frame []byte) (Result, error)
}

// Classify derives the PPE status from raw detections. Explicit "no-*"
// classes mark a violation immediately; a full equipment set is OK; anything
// short of that stays UNKNOWN so a half-visible worker does not flip the
// gate either way.
func Classify(detections []Detection) Result {
	r := Result{Detections: detections}

	var noHelmet, noVest, noGloves bool
	for _, d := range detections {
		switch d.Class {
		case "helmet":
			r.Helmet = true
		case "vest", "safety vest":
			r.Vest = true
		case "gloves", "glove":
			r.Gloves = true
		case "no-helmet":
			noHelmet = true
		case "no-vest", "no-safety-vest":
			noVest = true
		case "no-gloves", "no-glove":
			noGloves = true
		}
	}

	r.HasViolation = noHelmet || noVest || noGloves
	switch {
	case r.HasViolation:
		r.Status = policy.PPENotOK
	case r.Helmet && r.Vest && r.Gloves:
		r.Status = policy.PPEOK
	default:
		r.Status = policy.PPEUnknown
	}
	return r
}
