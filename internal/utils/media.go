package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const maxDownloadBytes = 64 << 20

// Download fetches an image from an http(s) or data: URL and returns its bytes
// and content type.
func Download(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, "", errors.New("image url is empty")
	}

	if strings.HasPrefix(imageURL, "data:") {
		data, contentType, _, err := DecodeImageDataURL(imageURL)
		return data, contentType, err
	}

	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download image http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxDownloadBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("image payload empty")
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// DecodeImageDataURL decodes an inline image given as a data URL or bare
// base64 and returns its bytes, content type and file extension. A sniffed
// image type wins over the declared one. The declared type is only trusted
// when the bytes are opaque to sniffing, and anything else is rejected.
func DecodeImageDataURL(value string) ([]byte, string, string, error) {
	declared, payload := SplitDataURL(strings.TrimSpace(value))
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", "", errors.New("empty data url payload")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("decode data url: %w", err)
	}

	sniffed := DetectContentType(data)
	if ext := ExtensionFromMime(sniffed); ext != "" {
		return data, sniffed, ext, nil
	}
	if sniffed == "application/octet-stream" {
		if ext := ExtensionFromMime(declared); ext != "" {
			return data, declared, ext, nil
		}
	}
	return nil, "", "", fmt.Errorf("data url is not an image: declared %q, sniffed %q", declared, sniffed)
}

// DetectContentType sniffs the payload, defaulting to application/octet-stream.
// TIFF is recognised here because net/http does not sniff it.
func DetectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return http.DetectContentType(data)
}

// ExtensionFromMime maps an image mime type to a file extension without the dot.
func ExtensionFromMime(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}

	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	case "image/heic":
		return "heic"
	case "image/heif":
		return "heif"
	default:
		return ""
	}
}

// ExtensionFromURL returns the lowercase extension of the URL path, if any.
func ExtensionFromURL(rawURL string) string {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	slash := strings.LastIndex(path, "/")
	dot := strings.LastIndex(path, ".")
	if dot < 0 || dot < slash || dot == len(path)-1 {
		return ""
	}
	ext := strings.ToLower(path[dot+1:])
	if ext == "jpeg" {
		ext = "jpg"
	}
	return ext
}
