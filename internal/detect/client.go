package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/reid/internal/embed"
	"github.com/kozaktomas/reid/internal/tracker"
)

const defaultDetectorURL = "http://localhost:8100"

// Client calls the person detection server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new detector client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// detectionResponse represents the response from the detection server.
type detectionResponse struct {
	Detections []struct {
		BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
		Confidence float64   `json:"confidence"`
	} `json:"detections"`
}

// Detect posts the frame image to the detection server and returns person
// detections. The frame index is stamped onto each detection.
func (c *Client) Detect(ctx context.Context, frame Frame) ([]tracker.Detection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", embed.DetectMIMEType(frame.Image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(frame.Image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect/person", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var detResp detectionResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]tracker.Detection, 0, len(detResp.Detections))
	for _, d := range detResp.Detections {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("malformed bbox in detector response: %v", d.BBox)
		}
		detections = append(detections, tracker.Detection{
			FrameIndex: frame.Index,
			Box: tracker.Rect{
				X:      d.BBox[0],
				Y:      d.BBox[1],
				Width:  d.BBox[2] - d.BBox[0],
				Height: d.BBox[3] - d.BBox[1],
			},
			Confidence: d.Confidence,
		})
	}
	return detections, nil
}
