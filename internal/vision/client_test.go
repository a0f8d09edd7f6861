package vision

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facechanger/internal/geometry"
	"facechanger/internal/headmask"
)

func TestClientDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "img", string(body))
		switch r.URL.Path {
		case "/v1/detect/face":
			_, _ = w.Write([]byte(`{"detections":[{"box":[1,2,30,40],"confidence":0.9}]}`))
		case "/v1/detect/person":
			_, _ = w.Write([]byte(`{"detections":[]}`))
		case "/v1/detect/pose":
			_, _ = w.Write([]byte(`{"landmarks":[{"index":0,"x":0.5,"y":0.25,"visibility":0.9}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	src := headmask.Source{Data: []byte("img"), Width: 100, Height: 100}

	faces, err := client.DetectFaces(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, geometry.Box{X1: 1, Y1: 2, X2: 30, Y2: 40}, faces[0].Box)
	assert.Equal(t, 0.9, faces[0].Confidence)

	persons, err := client.DetectPersons(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, persons)

	landmarks, err := client.DetectPose(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, landmarks, 1)
	assert.Equal(t, 0.25, landmarks[0].Y)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/detect/face" {
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("crash"))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	src := headmask.Source{Data: []byte("img")}

	_, err = client.DetectFaces(context.Background(), src)
	assert.ErrorContains(t, err, "model not loaded")

	_, err = client.DetectPose(context.Background(), src)
	assert.ErrorContains(t, err, "crash")

	_, err = client.DetectFaces(context.Background(), headmask.Source{})
	assert.Error(t, err)
}

func TestClientFeedsCascade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/detect/face" {
			_, _ = w.Write([]byte(`{"detections":[{"box":[100,100,200,200],"confidence":0.95}]}`))
			return
		}
		t.Errorf("unexpected call to %s", r.URL.Path)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	locator := headmask.NewLocator(headmask.DefaultOptions(), client.Detectors())
	res := locator.Locate(context.Background(), headmask.Source{Data: []byte("img"), Width: 1000, Height: 1000})
	assert.Equal(t, "face", res.Strategy)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(" ", nil)
	assert.Error(t, err)
}
