package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"facechanger/internal/config"
)

func TestLocalStoragePutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "/files")
	if err != nil {
		t.Fatalf("NewLocalStorage returned error: %v", err)
	}
	ctx := context.Background()

	key, err := store.Put(ctx, "/masks/sku-1/7.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if key != "masks/sku-1/7.png" {
		t.Fatalf("unexpected canonical key %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "masks", "sku-1", "7.png")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("unexpected data %q", data)
	}

	if _, err := store.Get(ctx, "masks/missing.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStorage returned error: %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.png", []byte("x"), ""); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if _, err := store.Put(context.Background(), "a.png", nil, ""); err == nil {
		t.Fatal("expected empty payload to be rejected")
	}
}

func TestLocalStorageReadableURL(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/files/")
	if err != nil {
		t.Fatalf("NewLocalStorage returned error: %v", err)
	}
	got, err := store.ResolveReadableURL(context.Background(), "outputs/a/1/2_0.png")
	if err != nil {
		t.Fatalf("ResolveReadableURL returned error: %v", err)
	}
	if got != "/files/outputs/a/1/2_0.png" {
		t.Fatalf("unexpected url %q", got)
	}

	public, err := NewLocalStorage(t.TempDir(), "https://cdn.example.com/files")
	if err != nil {
		t.Fatalf("NewLocalStorage returned error: %v", err)
	}
	got, err = public.ResolveReadableURL(context.Background(), "a.png")
	if err != nil {
		t.Fatalf("ResolveReadableURL returned error: %v", err)
	}
	if got != "https://cdn.example.com/files/a.png" {
		t.Fatalf("unexpected url %q", got)
	}
	if key, ok := public.CanonicalKey(got); !ok || key != "a.png" {
		t.Fatalf("CanonicalKey(%q) = %q, %v", got, key, ok)
	}
}

func TestCanonicalKey(t *testing.T) {
	n := newKeyNormalizer("bucket", "prod", "https://cdn.example.com", "bucket.s3.us-east-1.amazonaws.com", "https://r2.example.com/bucket")

	cases := []struct {
		ref  string
		want string
		ok   bool
	}{
		{ref: "outputs/a/1/2_0.png", want: "outputs/a/1/2_0.png", ok: true},
		{ref: "prod/outputs/a/1/2_0.png", want: "outputs/a/1/2_0.png", ok: true},
		{ref: "s3://bucket/prod/masks/a/1.png", want: "masks/a/1.png", ok: true},
		{ref: "s3://other/masks/a/1.png", ok: false},
		{ref: "https://cdn.example.com/prod/masks/a/1.png", want: "masks/a/1.png", ok: true},
		{ref: "https://bucket.s3.us-east-1.amazonaws.com/prod/a.png?X-Amz-Signature=abc", want: "a.png", ok: true},
		{ref: "https://r2.example.com/bucket/prod/a.png", want: "a.png", ok: true},
		{ref: "https://r2.example.com/elsewhere/a.png", ok: false},
		{ref: "https://replicate.delivery/out.png", ok: false},
		{ref: "a.png?v=1", want: "a.png", ok: true},
		{ref: "../a.png", ok: false},
		{ref: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := n.CanonicalKey(tc.ref)
		if ok != tc.ok || got != tc.want {
			t.Errorf("CanonicalKey(%q) = %q, %v; want %q, %v", tc.ref, got, ok, tc.want, tc.ok)
		}
	}
}

func TestObjectKeys(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	if got := UploadKey("SKU 42", "abc", ".JPG", now); got != "uploads/sku-42/2024/03/09/abc.jpg" {
		t.Fatalf("unexpected upload key %q", got)
	}
	if got := MaskKey("", 7); got != "masks/unknown/7.png" {
		t.Fatalf("unexpected mask key %q", got)
	}
	if got := OutputKey("sku", 7, 12, 2, "webp"); got != "outputs/sku/7/12_2.webp" {
		t.Fatalf("unexpected output key %q", got)
	}
	if got := detectContentType("a/b.png"); got != "image/png" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	if _, err := NewStorage(config.Config{StorageType: "ftp"}); err == nil {
		t.Fatal("expected unsupported storage type error")
	}
}
