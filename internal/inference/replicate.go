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

const replicateDefaultBaseURL = "https://api.replicate.com"

// Replicate drives the hosted predictions API.
type Replicate struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewReplicate(token, baseURL string, httpClient *http.Client) (*Replicate, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("replicate api token: %w", ErrNotConfigured)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = replicateDefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Replicate{token: token, baseURL: baseURL, httpClient: httpClient}, nil
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

func (p replicatePrediction) toPrediction(raw []byte) Prediction {
	return Prediction{
		ID:     p.ID,
		Status: MapStatus(p.Status),
		Output: decodeOutput(p.Output),
		Error:  errorText(p.Error),
		Raw:    json.RawMessage(raw),
	}
}

func (r *Replicate) Submit(ctx context.Context, modelVersion string, input map[string]any, idempotencyKey string) (Job, error) {
	if r == nil {
		return Job{}, errors.New("replicate client not initialised")
	}
	modelVersion = strings.TrimSpace(modelVersion)
	if modelVersion == "" {
		return Job{}, fmt.Errorf("replicate model version: %w", ErrNotConfigured)
	}

	bs, err := json.Marshal(map[string]any{"version": modelVersion, "input": input})
	if err != nil {
		return Job{}, fmt.Errorf("replicate marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/predictions", bytes.NewReader(bs))
	if err != nil {
		return Job{}, fmt.Errorf("replicate create request: %w", err)
	}
	r.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Job{}, fmt.Errorf("replicate submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, fmt.Errorf("replicate read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Job{}, &RemoteSubmissionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var pred replicatePrediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return Job{}, fmt.Errorf("replicate decode submission: %w", err)
	}
	if pred.ID == "" {
		return Job{}, errors.New("replicate response missing prediction id")
	}

	pollURL := strings.TrimSpace(pred.URLs.Get)
	if pollURL == "" {
		pollURL = r.baseURL + "/v1/predictions/" + pred.ID
	}

	logrus.WithFields(logrus.Fields{
		"prediction_id": pred.ID,
		"status":        pred.Status,
	}).Info("replicate_prediction_submitted")

	return Job{ID: pred.ID, PollURL: pollURL}, nil
}

func (r *Replicate) Poll(ctx context.Context, job Job) (Prediction, error) {
	if r == nil {
		return Prediction{}, errors.New("replicate client not initialised")
	}
	url := strings.TrimSpace(job.PollURL)
	if url == "" {
		if job.ID == "" {
			return Prediction{}, errors.New("replicate poll requires a job id")
		}
		url = r.baseURL + "/v1/predictions/" + job.ID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Prediction{}, fmt.Errorf("replicate create poll request: %w", err)
	}
	r.authorize(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("replicate poll request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, fmt.Errorf("replicate poll read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Prediction{}, fmt.Errorf("replicate poll http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pred replicatePrediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return Prediction{}, fmt.Errorf("replicate poll decode: %w", err)
	}
	if pred.ID == "" {
		pred.ID = job.ID
	}
	return pred.toPrediction(body), nil
}

func (r *Replicate) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token "+r.token)
}
