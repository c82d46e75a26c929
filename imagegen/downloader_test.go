package imagegen

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDownloader_DownloadBytes(t *testing.T) {
	payload := []byte("image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderConfig{})
	data, err := d.DownloadBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("DownloadBytes: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("data = %q, want %q", data, payload)
	}
}

func TestDownloader_RejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderConfig{})
	if _, err := d.DownloadBytes(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestDownloader_EnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderConfig{MaxBytes: 32})
	if _, err := d.DownloadBytes(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestDownloader_RejectsEmptyURL(t *testing.T) {
	d := NewDownloader(DownloaderConfig{})
	if _, err := d.DownloadBytes(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
