package utils

import "testing"

func TestSplitDataURL(t *testing.T) {
	mimeType, body := SplitDataURL("data:image/webp;base64,AAAA")
	if mimeType != "image/webp" || body != "AAAA" {
		t.Fatalf("got %q %q", mimeType, body)
	}
	mimeType, body = SplitDataURL("AAAA")
	if mimeType != "image/jpeg" || body != "AAAA" {
		t.Fatalf("bare base64: got %q %q", mimeType, body)
	}
	if _, body = SplitDataURL("data:image/png,raw"); body != "" {
		t.Fatalf("non-base64 data url: got body %q", body)
	}
}

func TestGenerateUID(t *testing.T) {
	a, b := GenerateUID(), GenerateUID()
	if len(a) != 32 {
		t.Fatalf("uid length = %d", len(a))
	}
	if a == b {
		t.Fatalf("uids collide: %s", a)
	}
}
