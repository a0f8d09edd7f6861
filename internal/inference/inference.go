package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the normalised state of a remote render job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsTerminal reports whether the job will not change state again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Job identifies a submitted remote job.
type Job struct {
	ID      string `json:"id"`
	PollURL string `json:"poll_url"`
	// ResultURL is set by drivers whose finished output lives apart from the status endpoint.
	ResultURL string `json:"result_url,omitempty"`
}

// Prediction is one observation of a remote job.
type Prediction struct {
	ID     string
	Status Status
	Output []string
	Error  string
	Raw    json.RawMessage
}

// Client is the hosted inference service: a black box that accepts an
// image, mask and parameters and eventually yields 0..N output images.
type Client interface {
	// Submit starts a job. Drivers forward idempotencyKey to the remote so
	// retried submits for the same generation can be recognised.
	Submit(ctx context.Context, modelVersion string, input map[string]any, idempotencyKey string) (Job, error)
	Poll(ctx context.Context, job Job) (Prediction, error)
}

// ErrNotConfigured is returned when a driver lacks credentials or a model.
var ErrNotConfigured = errors.New("inference client not configured")

// RemoteSubmissionError carries the raw remote payload of a rejected submit.
type RemoteSubmissionError struct {
	StatusCode int
	Body       string
}

func (e *RemoteSubmissionError) Error() string {
	return fmt.Sprintf("remote submission failed: http %d: %s", e.StatusCode, e.Body)
}

// PollTimeoutError reports a job that did not reach a terminal state in time.
type PollTimeoutError struct {
	JobID      string
	Timeout    time.Duration
	LastStatus Status
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("timeout: job %s not terminal after %s (last status %q)", e.JobID, e.Timeout, e.LastStatus)
}

// MapStatus maps provider-specific status strings onto Status.
func MapStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "queued", "in_queue", "created", "starting":
		return StatusPending
	case "running", "processing", "in_progress", "started":
		return StatusRunning
	case "succeeded", "success", "completed", "done", "ok":
		return StatusSucceeded
	case "failed", "failure", "error":
		return StatusFailed
	case "cancelled", "canceled", "aborted", "stopped":
		return StatusCanceled
	default:
		return StatusRunning
	}
}

// decodeOutput accepts a single URL, a list of URLs, or a list of objects
// with a url field.
func decodeOutput(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil
		}
		return []string{single}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && strings.TrimSpace(obj.URL) != "" {
			out = append(out, strings.TrimSpace(obj.URL))
		}
	}
	return out
}

// errorText flattens a remote error that may be a string or an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return string(raw)
}
