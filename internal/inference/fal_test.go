package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFalAISubmitPollResult(t *testing.T) {
	var gotInput map[string]any
	var statusCalls int32

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Key fal-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/fal-ai/flux-lora/inpainting":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))
			_, _ = w.Write([]byte(`{"request_id":"r1","status":"IN_QUEUE",` +
				`"status_url":"` + srv.URL + `/fal-ai/flux-lora/requests/r1/status",` +
				`"response_url":"` + srv.URL + `/fal-ai/flux-lora/requests/r1"}`))
		case "/fal-ai/flux-lora/requests/r1/status":
			if atomic.AddInt32(&statusCalls, 1) == 1 {
				_, _ = w.Write([]byte(`{"status":"IN_PROGRESS"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
		case "/fal-ai/flux-lora/requests/r1":
			_, _ = w.Write([]byte(`{"images":[{"url":"https://fal.media/x.png","content_type":"image/png"},"https://fal.media/y.png"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewFalAI("fal-key", srv.URL, srv.Client())
	require.NoError(t, err)

	job, err := client.Submit(context.Background(), "fal-ai/flux-lora/inpainting", map[string]any{
		"prompt":          "a photo",
		"image":           "https://img",
		"mask":            "https://mask",
		"prompt_strength": 0.8,
		"num_outputs":     3,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "r1", job.ID)
	assert.Equal(t, "https://img", gotInput["image_url"])
	assert.Equal(t, "https://mask", gotInput["mask_url"])
	assert.Equal(t, 0.8, gotInput["strength"])
	assert.EqualValues(t, 3, gotInput["num_images"])
	assert.NotContains(t, gotInput, "image")

	pred, err := client.Poll(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, pred.Status)

	pred, err = client.Poll(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, pred.Status)
	assert.Equal(t, []string{"https://fal.media/x.png", "https://fal.media/y.png"}, pred.Output)
}

func TestFalAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"COMPLETED","error":"nsfw content"}`))
	}))
	defer srv.Close()

	client, err := NewFalAI("k", srv.URL, srv.Client())
	require.NoError(t, err)

	pred, err := client.Poll(context.Background(), Job{ID: "r", PollURL: srv.URL + "/status"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, pred.Status)
	assert.Equal(t, "nsfw content", pred.Error)
}
