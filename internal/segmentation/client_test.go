package segmentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facechanger/internal/inference"
)

type fakeInference struct {
	input  map[string]any
	model  string
	result inference.Prediction
}

func (f *fakeInference) Submit(ctx context.Context, modelVersion string, input map[string]any, key string) (inference.Job, error) {
	f.model = modelVersion
	f.input = input
	return inference.Job{ID: "seg-1"}, nil
}

func (f *fakeInference) Poll(ctx context.Context, job inference.Job) (inference.Prediction, error) {
	return f.result, nil
}

func TestSegmentDownloadsFirstOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mask-bytes"))
	}))
	defer srv.Close()

	fake := &fakeInference{result: inference.Prediction{
		Status: inference.StatusSucceeded,
		Output: []string{srv.URL + "/mask.png", srv.URL + "/other.png"},
	}}
	client, err := NewClient(fake, "lang-sam:v1", inference.PollConfig{Interval: time.Millisecond, Timeout: time.Second},
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	data, err := client.Segment(context.Background(), "https://img", "Head")
	require.NoError(t, err)
	assert.Equal(t, "mask-bytes", string(data))
	assert.Equal(t, "lang-sam:v1", fake.model)
	assert.Equal(t, map[string]any{"image": "https://img", "text_prompt": "Head"}, fake.input)
}

func TestSegmentFailure(t *testing.T) {
	fake := &fakeInference{result: inference.Prediction{Status: inference.StatusFailed, Error: "no head"}}
	client, err := NewClient(fake, "m", inference.PollConfig{Interval: time.Millisecond, Timeout: time.Second}, WithPromptField("prompt"))
	require.NoError(t, err)

	_, err = client.Segment(context.Background(), "https://img", "Head")
	assert.ErrorContains(t, err, "no head")
	assert.Equal(t, "Head", fake.input["prompt"])
}

func TestNewClientRequiresModel(t *testing.T) {
	_, err := NewClient(&fakeInference{}, "", inference.DefaultPollConfig)
	assert.ErrorIs(t, err, inference.ErrNotConfigured)
}
