// Package vision talks to the detection sidecar that hosts the face, pose and
// person models. Images are posted as raw bytes; boxes come back in source
// pixels as [x1, y1, x2, y2], landmarks normalised to [0,1].
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"facechanger/internal/geometry"
	"facechanger/internal/headmask"
	"facechanger/internal/utils"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vision sidecar url is not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// Detectors exposes the client as every cascade detector it can serve.
func (c *Client) Detectors() headmask.Detectors {
	return headmask.Detectors{Face: c, Pose: c, Person: c}
}

type detection struct {
	Box        []int   `json:"box"`
	Confidence float64 `json:"confidence"`
}

type detectResponse struct {
	Detections []detection         `json:"detections"`
	Landmarks  []headmask.Landmark `json:"landmarks"`
	Error      string              `json:"error"`
}

func (c *Client) DetectFaces(ctx context.Context, src headmask.Source) ([]headmask.Detection, error) {
	resp, err := c.call(ctx, "face", src)
	if err != nil {
		return nil, err
	}
	return toDetections(resp.Detections)
}

func (c *Client) DetectPersons(ctx context.Context, src headmask.Source) ([]headmask.Detection, error) {
	resp, err := c.call(ctx, "person", src)
	if err != nil {
		return nil, err
	}
	return toDetections(resp.Detections)
}

func (c *Client) DetectPose(ctx context.Context, src headmask.Source) ([]headmask.Landmark, error) {
	resp, err := c.call(ctx, "pose", src)
	if err != nil {
		return nil, err
	}
	return resp.Landmarks, nil
}

func (c *Client) call(ctx context.Context, kind string, src headmask.Source) (*detectResponse, error) {
	if c == nil {
		return nil, errors.New("vision client not initialised")
	}
	if len(src.Data) == 0 {
		return nil, errors.New("vision: image data is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect/"+kind, bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("vision create request: %w", err)
	}
	req.Header.Set("Content-Type", utils.DetectContentType(src.Data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision %s request: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vision %s read: %w", kind, err)
	}

	var out detectResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("vision %s decode: %w", kind, err)
		}
	}
	if resp.StatusCode >= 400 || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("vision %s http %d: %s", kind, resp.StatusCode, msg)
	}
	return &out, nil
}

func toDetections(in []detection) ([]headmask.Detection, error) {
	out := make([]headmask.Detection, 0, len(in))
	for _, d := range in {
		box, err := geometry.FromSlice(d.Box)
		if err != nil {
			return nil, fmt.Errorf("vision: %w", err)
		}
		out = append(out, headmask.Detection{Box: box, Confidence: d.Confidence})
	}
	return out, nil
}
