package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
)

// ---------------------------------------------------------------------------
// Gemini service
// Two responsibilities:
//   - scene analysis: watch the source video once per batch and return the
//     ordered scene segments that feed the clip pipeline
//   - product compositing: merge the product image into the avatar reference
//     prior to generation (best-effort — callers degrade on failure)
// ---------------------------------------------------------------------------

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

type GeminiService struct {
	apiKey         string
	analysisModel  string
	compositeModel string
	baseURL        string
	client         *http.Client
}

func NewGeminiService(apiKey, analysisModel, compositeModel string) *GeminiService {
	if analysisModel == "" {
		analysisModel = "gemini-2.5-flash"
	}
	if compositeModel == "" {
		compositeModel = "gemini-3-pro-image-preview"
	}
	return &GeminiService{
		apiKey:         apiKey,
		analysisModel:  analysisModel,
		compositeModel: compositeModel,
		baseURL:        geminiEndpoint,
		client:         &http.Client{Timeout: 300 * time.Second},
	}
}

// Gemini API request/response structures
type GeminiGenerateContentRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerateContentResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content GeminiResponseContent `json:"content"`
}

type GeminiResponseContent struct {
	Parts []GeminiResponsePart `json:"parts"`
}

type GeminiResponsePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

const analysisPrompt = `Analyze this video and segment it into distinct scenes suitable for short-form clips.

For each scene return:
- start_time_seconds and end_time_seconds (end must be after start)
- description: one sentence describing the action and setting, usable as a video generation prompt
- product_visible: true if a product is visibly held or presented in the scene

Respond with JSON only, in this exact shape:
{"segments":[{"start_time_seconds":0,"end_time_seconds":5,"description":"...","product_visible":false}]}`

// analysisResult mirrors the JSON the analysis model is instructed to return.
type analysisResult struct {
	Segments []models.Segment `json:"segments"`
}

// AnalyzeVideo runs the scene segmentation pass over the source video and
// returns the ordered segment list. Invoked once per batch, before the
// pipeline runs.
func (s *GeminiService) AnalyzeVideo(ctx context.Context, videoPath string) ([]models.Segment, error) {
	videoData, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}

	log.Printf("[Gemini] Analyzing video %s (%d bytes) with %s", filepath.Base(videoPath), len(videoData), s.analysisModel)

	reqBody := GeminiGenerateContentRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{
				{Text: analysisPrompt},
				{InlineData: &GeminiInlineData{
					MimeType: videoMimeType(videoPath),
					Data:     base64.StdEncoding.EncodeToString(videoData),
				}},
			}},
		},
		GenerationConfig: &GeminiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	}

	resp, err := s.doGenerateContent(ctx, s.analysisModel, reqBody)
	if err != nil {
		return nil, err
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("no text in analysis response")
	}

	segments, err := ParseSegments([]byte(text))
	if err != nil {
		return nil, err
	}

	log.Printf("[Gemini] Analysis found %d segments", len(segments))
	return segments, nil
}

// ParseSegments decodes the analysis JSON and drops segments the model
// returned malformed (empty description). Window validation is left to the
// pipeline so invalid clips stay visible with a proper failure.
func ParseSegments(data []byte) ([]models.Segment, error) {
	var result analysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}

	if len(result.Segments) == 0 {
		return nil, fmt.Errorf("analysis returned no segments")
	}

	segments := make([]models.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if seg.Description == "" {
			continue
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("analysis returned no usable segments")
	}

	return segments, nil
}

const compositePrompt = `Edit the first image (a person) so they are naturally holding and presenting the product shown in the second image. Keep the person's pose, lighting, and background unchanged. The product must look physically held, correctly scaled, with matching lighting and shadows. Return the edited image only.`

// CompositeProduct merges the product image into the avatar reference and
// returns the edited image bytes. Callers must treat failure as degradable:
// fall back to the plain avatar with an augmented prompt, never fail the clip.
func (s *GeminiService) CompositeProduct(ctx context.Context, avatarData []byte, avatarMime string, productData []byte, productMime string) ([]byte, error) {
	log.Printf("[Gemini] Compositing product onto avatar (avatar=%d bytes, product=%d bytes, model=%s)", len(avatarData), len(productData), s.compositeModel)

	reqBody := GeminiGenerateContentRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{
				{Text: compositePrompt},
				{InlineData: &GeminiInlineData{
					MimeType: avatarMime,
					Data:     base64.StdEncoding.EncodeToString(avatarData),
				}},
				{InlineData: &GeminiInlineData{
					MimeType: productMime,
					Data:     base64.StdEncoding.EncodeToString(productData),
				}},
			}},
		},
		GenerationConfig: &GeminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	resp, err := s.doGenerateContent(ctx, s.compositeModel, reqBody)
	if err != nil {
		return nil, err
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 image: %w", err)
			}
			return imageData, nil
		}
	}

	if text := firstText(resp); text != "" {
		return nil, fmt.Errorf("gemini returned text instead of image: %s", text[:min(200, len(text))])
	}
	return nil, fmt.Errorf("no image data found in composite response")
}

func (s *GeminiService) doGenerateContent(ctx context.Context, model string, reqBody GeminiGenerateContentRequest) (*GeminiGenerateContentResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", s.baseURL, model, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var geminiResp GeminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	return &geminiResp, nil
}

func firstText(resp *GeminiGenerateContentResponse) string {
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func videoMimeType(path string) string {
	switch filepath.Ext(path) {
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	default:
		return "video/mp4"
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
