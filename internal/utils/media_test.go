package utils

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDownload(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	data, ct, err := Download(context.Background(), srv.Client(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != string(png) {
		t.Fatalf("unexpected body %q", data)
	}
	if ct != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", ct)
	}

	if _, _, err := Download(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestDownloadDataURL(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	data, ct, err := Download(context.Background(), nil, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png))
	if err != nil {
		t.Fatalf("download data url: %v", err)
	}
	if string(data) != string(png) || ct != "image/png" {
		t.Fatalf("unexpected result %q %q", data, ct)
	}

	if _, _, err := Download(context.Background(), nil, "data:image/png;base64,aGVsbG8="); err == nil {
		t.Fatal("expected text disguised as png to be rejected")
	}
}

func TestDecodeImageDataURL(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	tiff := []byte("II*\x00\x08\x00\x00\x00")
	opaque := []byte{0x00, 0x00, 0x00, 0x18, 0x66, 0x74, 0x79, 0x70, 0x68, 0x65, 0x69, 0x63}
	enc := base64.StdEncoding.EncodeToString

	tests := []struct {
		name        string
		payload     string
		data        []byte
		contentType string
		ext         string
		wantErr     bool
	}{
		{name: "sniffed type wins", payload: "data:image/webp;base64," + enc(png), data: png, contentType: "image/png", ext: "png"},
		{name: "bare base64", payload: enc(png), data: png, contentType: "image/png", ext: "png"},
		{name: "tiff", payload: "data:image/tiff;base64," + enc(tiff), data: tiff, contentType: "image/tiff", ext: "tiff"},
		{name: "declared heic", payload: "data:image/heic;base64," + enc(opaque), data: opaque, contentType: "image/heic", ext: "heic"},
		{name: "opaque without image type", payload: "data:application/zip;base64," + enc(opaque), wantErr: true},
		{name: "text", payload: "data:image/png;base64," + enc([]byte("hello")), wantErr: true},
		{name: "empty", payload: "  ", wantErr: true},
		{name: "bad base64", payload: "data:image/png;base64,!!!", wantErr: true},
		{name: "missing body", payload: "data:image/png;base64,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, contentType, ext, err := DecodeImageDataURL(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q %q", contentType, ext)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != string(tt.data) {
				t.Errorf("data mismatch")
			}
			if contentType != tt.contentType || ext != tt.ext {
				t.Errorf("got %q %q, want %q %q", contentType, ext, tt.contentType, tt.ext)
			}
		})
	}
}

func TestExtensionFromURL(t *testing.T) {
	cases := map[string]string{
		"https://cdn/x/out.PNG?sig=1": "png",
		"https://cdn/x/out.jpeg":      "jpg",
		"https://cdn/x.y/out":         "",
		"https://cdn/x/out.":          "",
	}
	for in, want := range cases {
		if got := ExtensionFromURL(in); got != want {
			t.Errorf("ExtensionFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtensionFromMime(t *testing.T) {
	if got := ExtensionFromMime("image/jpeg; charset=binary"); got != "jpg" {
		t.Fatalf("got %q", got)
	}
	if got := ExtensionFromMime("text/plain"); got != "" {
		t.Fatalf("got %q", got)
	}
}
