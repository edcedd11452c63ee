package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// routeRecorder is a fake fal storage gateway that records which upload path
// each request took.
type routeRecorder struct {
	relayHits  int
	directHits int
	putHits    int
	lastBody   []byte
	putTarget  string
}

func newStorageTestServer(t *testing.T) (*httptest.Server, *routeRecorder) {
	t.Helper()
	rec := &routeRecorder{}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)

	mux.HandleFunc("/storage/upload", func(w http.ResponseWriter, r *http.Request) {
		rec.relayHits++
		rec.lastBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]string{
			"access_url": "https://cdn.test/relay/" + r.URL.Query().Get("file_name"),
		})
	})

	mux.HandleFunc("/storage/upload/initiate", func(w http.ResponseWriter, r *http.Request) {
		rec.directHits++
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{
			"upload_url": server.URL + "/put/" + req["file_name"],
			"file_url":   "https://cdn.test/direct/" + req["file_name"],
		})
	})

	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		rec.putHits++
		rec.putTarget = r.URL.Path
		if r.Header.Get("Authorization") != "" {
			t.Error("presigned PUT must not carry an Authorization header")
		}
		rec.lastBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	return server, rec
}

func TestUploadRoutesBelowThresholdToRelay(t *testing.T) {
	server, rec := newStorageTestServer(t)
	defer server.Close()

	s := New(server.URL, "k", 1024)
	data := bytes.Repeat([]byte{1}, 1023)

	url, err := s.Upload(context.Background(), data, "small.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if url != "https://cdn.test/relay/small.mp4" {
		t.Errorf("unexpected url: %q", url)
	}
	if rec.relayHits != 1 || rec.directHits != 0 {
		t.Errorf("expected relay path, got relay=%d direct=%d", rec.relayHits, rec.directHits)
	}
	if len(rec.lastBody) != 1023 {
		t.Errorf("expected 1023 bytes relayed, got %d", len(rec.lastBody))
	}
}

func TestUploadRoutesAtThresholdToDirect(t *testing.T) {
	server, rec := newStorageTestServer(t)
	defer server.Close()

	s := New(server.URL, "k", 1024)
	data := bytes.Repeat([]byte{2}, 1024) // Exactly at the threshold

	url, err := s.Upload(context.Background(), data, "exact.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if url != "https://cdn.test/direct/exact.mp4" {
		t.Errorf("unexpected url: %q", url)
	}
	if rec.relayHits != 0 || rec.directHits != 1 || rec.putHits != 1 {
		t.Errorf("expected direct path, got relay=%d direct=%d put=%d", rec.relayHits, rec.directHits, rec.putHits)
	}
	if len(rec.lastBody) != 1024 {
		t.Errorf("expected 1024 bytes PUT, got %d", len(rec.lastBody))
	}
}

func TestUploadRoutesAboveThresholdToDirect(t *testing.T) {
	server, rec := newStorageTestServer(t)
	defer server.Close()

	s := New(server.URL, "k", 1024)
	data := bytes.Repeat([]byte{3}, 1025)

	if _, err := s.Upload(context.Background(), data, "big.mp4", "video/mp4"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if rec.relayHits != 0 || rec.directHits != 1 {
		t.Errorf("expected direct path, got relay=%d direct=%d", rec.relayHits, rec.directHits)
	}
}

func TestRelayFailureIsUploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer server.Close()

	s := New(server.URL, "bad-key", 1024)
	_, err := s.Upload(context.Background(), []byte("x"), "f.mp4", "video/mp4")
	if err == nil {
		t.Fatal("expected error")
	}

	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UploadError, got %T: %v", err, err)
	}
	if upErr.Path != "relay" {
		t.Errorf("expected relay path, got %q", upErr.Path)
	}
	if upErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", upErr.StatusCode)
	}
}

func TestRelayRetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_url": "https://cdn.test/f.mp4"})
	}))
	defer server.Close()

	s := New(server.URL, "k", 1024)
	url, err := s.Upload(context.Background(), []byte("x"), "f.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("expected retries to recover, got: %v", err)
	}
	if url != "https://cdn.test/f.mp4" {
		t.Errorf("unexpected url: %q", url)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestUploadFile(t *testing.T) {
	server, rec := newStorageTestServer(t)
	defer server.Close()

	path := filepath.Join(t.TempDir(), "segment.mp4")
	if err := os.WriteFile(path, []byte("segment-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(server.URL, "k", 1024)
	url, err := s.UploadFile(context.Background(), path, "segment.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.test/") {
		t.Errorf("local path leaked into url: %q", url)
	}
	if string(rec.lastBody) != "segment-bytes" {
		t.Errorf("file content not uploaded: %q", rec.lastBody)
	}
}

func TestUploadFileMissing(t *testing.T) {
	s := New("http://unused", "k", 1024)
	_, err := s.UploadFile(context.Background(), "/nonexistent/file.mp4", "f.mp4", "video/mp4")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGenerateObjectName(t *testing.T) {
	a := GenerateObjectName("segment", ".mp4")
	b := GenerateObjectName("segment", ".mp4")
	if a == b {
		t.Error("object names must be unique")
	}
	if !strings.HasPrefix(a, "segment-") || !strings.HasSuffix(a, ".mp4") {
		t.Errorf("unexpected object name shape: %q", a)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{408, 429, 502, 503, 504}
	for _, code := range retryable {
		if !isRetryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	permanent := []int{400, 401, 403, 404, 413}
	for _, code := range permanent {
		if isRetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
