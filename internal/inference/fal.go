package inference

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

	"github.com/sirupsen/logrus"
)

const falQueueBaseURL = "https://queue.fal.run"

// falInputKeys renames canonical render parameters to fal.ai field names.
var falInputKeys = map[string]string{
	"image":           "image_url",
	"mask":            "mask_url",
	"prompt_strength": "strength",
	"num_outputs":     "num_images",
}

// FalAI drives the fal.ai queue API: submit returns status and response
// URLs which are polled until the request completes.
type FalAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewFalAI(apiKey, baseURL string, httpClient *http.Client) (*FalAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("fal.ai api key: %w", ErrNotConfigured)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = falQueueBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &FalAI{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient}, nil
}

func falInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		if renamed, ok := falInputKeys[k]; ok {
			k = renamed
		}
		out[k] = v
	}
	return out
}

func (f *FalAI) Submit(ctx context.Context, modelVersion string, input map[string]any, idempotencyKey string) (Job, error) {
	if f == nil {
		return Job{}, errors.New("fal.ai provider not initialised")
	}
	endpoint := strings.Trim(strings.TrimSpace(modelVersion), "/")
	if endpoint == "" {
		return Job{}, fmt.Errorf("fal.ai model: %w", ErrNotConfigured)
	}

	bs, err := json.Marshal(falInput(input))
	if err != nil {
		return Job{}, fmt.Errorf("fal.ai marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+endpoint, bytes.NewReader(bs))
	if err != nil {
		return Job{}, fmt.Errorf("fal.ai create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Job{}, fmt.Errorf("fal.ai submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, fmt.Errorf("fal.ai read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Job{}, &RemoteSubmissionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var submission falSubmissionResponse
	if err := json.Unmarshal(body, &submission); err != nil {
		return Job{}, fmt.Errorf("fal.ai decode submission: %w", err)
	}
	if submission.RequestID == "" {
		return Job{}, errors.New("fal.ai response missing request id")
	}

	statusURL := strings.TrimSpace(submission.StatusURL)
	if statusURL == "" {
		statusURL = fmt.Sprintf("%s/%s/requests/%s/status", f.baseURL, endpoint, submission.RequestID)
	}
	responseURL := strings.TrimSpace(submission.ResponseURL)
	if responseURL == "" {
		responseURL = fmt.Sprintf("%s/%s/requests/%s", f.baseURL, endpoint, submission.RequestID)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": submission.RequestID,
		"model":      endpoint,
	}).Info("falai_request_submitted")

	return Job{ID: submission.RequestID, PollURL: statusURL, ResultURL: responseURL}, nil
}

func (f *FalAI) Poll(ctx context.Context, job Job) (Prediction, error) {
	if f == nil {
		return Prediction{}, errors.New("fal.ai provider not initialised")
	}
	if strings.TrimSpace(job.PollURL) == "" {
		return Prediction{}, errors.New("fal.ai poll requires a status url")
	}

	body, err := f.get(ctx, job.PollURL)
	if err != nil {
		return Prediction{}, err
	}
	var status falStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return Prediction{}, fmt.Errorf("fal.ai poll decode: %w", err)
	}

	pred := Prediction{ID: job.ID, Status: MapStatus(status.Status), Raw: json.RawMessage(body)}
	if status.Error != nil {
		pred.Status = StatusFailed
		pred.Error = status.Error.text()
		return pred, nil
	}
	if pred.Status != StatusSucceeded {
		return pred, nil
	}

	resultURL := strings.TrimSpace(job.ResultURL)
	if resultURL == "" {
		resultURL = strings.TrimSpace(status.ResponseURL)
	}
	if resultURL == "" {
		return Prediction{}, errors.New("fal.ai response url missing")
	}
	body, err = f.get(ctx, resultURL)
	if err != nil {
		return Prediction{}, err
	}
	var envelope falResultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Prediction{}, fmt.Errorf("fal.ai result decode: %w", err)
	}
	if envelope.Error != nil {
		pred.Status = StatusFailed
		pred.Error = envelope.Error.text()
	}
	pred.Output = envelope.urls()
	pred.Raw = json.RawMessage(body)
	return pred, nil
}

func (f *FalAI) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fal.ai create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal.ai poll request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal.ai poll read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fal.ai poll http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type falSubmissionResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status      string       `json:"status"`
	ResponseURL string       `json:"response_url"`
	Error       *falAPIError `json:"error"`
}

type falResultEnvelope struct {
	Images  []falImagePayload `json:"images"`
	Output  []falImagePayload `json:"output"`
	Outputs []falImagePayload `json:"outputs"`
	Image   *falImagePayload  `json:"image"`
	Error   *falAPIError      `json:"error"`
}

func (e falResultEnvelope) urls() []string {
	payloads := make([]falImagePayload, 0, len(e.Images)+len(e.Output)+len(e.Outputs)+1)
	payloads = append(payloads, e.Images...)
	payloads = append(payloads, e.Output...)
	payloads = append(payloads, e.Outputs...)
	if e.Image != nil {
		payloads = append(payloads, *e.Image)
	}

	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if url := strings.TrimSpace(p.URL); url != "" {
			out = append(out, url)
		}
	}
	return out
}

type falImagePayload struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

func (p *falImagePayload) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &p.URL)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	for _, key := range []string{"url", "image_url", "uri", "signed_url"} {
		if v, ok := payload[key].(string); ok && v != "" {
			p.URL = v
			break
		}
	}
	if v, ok := payload["content_type"].(string); ok {
		p.ContentType = v
	}
	return nil
}

type falAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	raw     string
}

func (e *falAPIError) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.raw)
	}
	type plain falAPIError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	e.Code, e.Message = p.Code, p.Message
	return nil
}

func (e *falAPIError) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.raw != "" {
		return e.raw
	}
	return e.Code
}
