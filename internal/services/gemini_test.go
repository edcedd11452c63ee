package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSegments(t *testing.T) {
	data := []byte(`{"segments":[
		{"start_time_seconds":0,"end_time_seconds":5,"description":"person waves at the camera","product_visible":false},
		{"start_time_seconds":5,"end_time_seconds":9,"description":"person holds up a bottle","product_visible":true},
		{"start_time_seconds":9,"end_time_seconds":12,"description":"","product_visible":false}
	]}`)

	segments, err := ParseSegments(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// The empty-description segment is dropped, order preserved
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].StartSeconds != 0 || segments[0].EndSeconds != 5 {
		t.Errorf("unexpected first segment window: %+v", segments[0])
	}
	if !segments[1].ProductVisible {
		t.Error("second segment should have product_visible")
	}
}

func TestParseSegmentsKeepsInvalidWindows(t *testing.T) {
	// Bad windows are the pipeline's problem — parsing keeps them so the
	// clip can fail visibly instead of silently disappearing
	data := []byte(`{"segments":[{"start_time_seconds":9,"end_time_seconds":9,"description":"degenerate scene","product_visible":false}]}`)

	segments, err := ParseSegments(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
}

func TestParseSegmentsErrors(t *testing.T) {
	cases := map[string][]byte{
		"invalid json":  []byte(`not json`),
		"no segments":   []byte(`{"segments":[]}`),
		"all unusable":  []byte(`{"segments":[{"start_time_seconds":0,"end_time_seconds":5,"description":""}]}`),
		"missing field": []byte(`{}`),
	}
	for name, data := range cases {
		if _, err := ParseSegments(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAnalyzeVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-analysis-model:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req GeminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Error("analysis must request a JSON response")
		}

		analysisJSON := `{"segments":[{"start_time_seconds":0,"end_time_seconds":5,"description":"intro scene","product_visible":false}]}`
		json.NewEncoder(w).Encode(GeminiGenerateContentResponse{
			Candidates: []GeminiCandidate{{
				Content: GeminiResponseContent{
					Parts: []GeminiResponsePart{{Text: analysisJSON}},
				},
			}},
		})
	}))
	defer server.Close()

	videoPath := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(videoPath, []byte("fake-video"), 0644); err != nil {
		t.Fatal(err)
	}

	svc := NewGeminiService("key", "test-analysis-model", "")
	svc.baseURL = server.URL

	segments, err := svc.AnalyzeVideo(context.Background(), videoPath)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(segments) != 1 || segments[0].Description != "intro scene" {
		t.Errorf("unexpected segments: %+v", segments)
	}
}

func TestCompositeProduct(t *testing.T) {
	edited := []byte("edited-image-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GeminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		// One prompt part plus two inline images
		parts := req.Contents[0].Parts
		imageParts := 0
		for _, p := range parts {
			if p.InlineData != nil {
				imageParts++
			}
		}
		if imageParts != 2 {
			t.Errorf("expected 2 inline images, got %d", imageParts)
		}

		json.NewEncoder(w).Encode(GeminiGenerateContentResponse{
			Candidates: []GeminiCandidate{{
				Content: GeminiResponseContent{
					Parts: []GeminiResponsePart{{
						InlineData: &GeminiInlineData{
							MimeType: "image/png",
							Data:     base64.StdEncoding.EncodeToString(edited),
						},
					}},
				},
			}},
		})
	}))
	defer server.Close()

	svc := NewGeminiService("key", "", "")
	svc.baseURL = server.URL

	result, err := svc.CompositeProduct(context.Background(), []byte("avatar"), "image/jpeg", []byte("product"), "image/png")
	if err != nil {
		t.Fatalf("composite failed: %v", err)
	}
	if string(result) != string(edited) {
		t.Errorf("unexpected composite output: %q", result)
	}
}

func TestCompositeProductTextOnlyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GeminiGenerateContentResponse{
			Candidates: []GeminiCandidate{{
				Content: GeminiResponseContent{
					Parts: []GeminiResponsePart{{Text: "I cannot edit this image."}},
				},
			}},
		})
	}))
	defer server.Close()

	svc := NewGeminiService("key", "", "")
	svc.baseURL = server.URL

	if _, err := svc.CompositeProduct(context.Background(), []byte("a"), "image/jpeg", []byte("p"), "image/png"); err == nil {
		t.Fatal("expected error when no image is returned")
	}
}

func TestVideoMimeType(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":  "video/mp4",
		"clip.mov":  "video/quicktime",
		"clip.webm": "video/webm",
		"clip":      "video/mp4",
	}
	for path, want := range cases {
		if got := videoMimeType(path); got != want {
			t.Errorf("videoMimeType(%q) = %q, want %q", path, got, want)
		}
	}
}
