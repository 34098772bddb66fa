package detector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client calls an external inference service over HTTP. The frame is posted
// as a multipart file and the service answers with the detection list.
type Client struct {
	inferenceURL string
	confidence   float64
	http         *http.Client
}

// NewClient creates a detector client for the given inference URL.
// Detections below the confidence threshold are discarded.
func NewClient(inferenceURL string, confidence float64) *Client {
	return &Client{
		inferenceURL: inferenceURL,
		confidence:   confidence,
		http:         &http.Client{Timeout: 5 * time.Second},
	}
}

type inferenceResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect posts one JPEG frame to the inference service and classifies the
// response.
func (c *Client) Detect(frame []byte) (Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return Result{}, fmt.Errorf("write frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.inferenceURL, body)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("inference status %d: %s", resp.StatusCode, data)
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode inference response: %w", err)
	}

	filtered := make([]Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		if d.Confidence >= c.confidence {
			filtered = append(filtered, d)
		}
	}

	return Classify(filtered), nil
}

// CheckHealth probes the inference service so startup can warn early when
// the model is unreachable.
func (c *Client) CheckHealth() error {
	resp, err := c.http.Get(c.inferenceURL)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}
