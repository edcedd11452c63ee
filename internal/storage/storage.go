package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Upload timeout per attempt — generous for multi-MB video segments
	uploadTimeout = 180 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// UploadError is the terminal failure of an upload, after retries are
// exhausted or a permanent status is returned.
type UploadError struct {
	Path       string // "relay" or "direct"
	StatusCode int    // zero for transport-level failures
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed (%s path, status %d): %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload failed (%s path): %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Storage moves binary assets into fal's remote object storage and hands back
// addressable URLs usable as generation inputs.
//
// Two routes exist:
//   - relay: a single POST of the raw bytes through the fal REST gateway.
//     Simple, but the gateway enforces a request body limit.
//   - direct: initiate an upload, then PUT the bytes straight to the returned
//     presigned object-storage URL, bypassing the gateway body limit.
//
// Payloads at or above thresholdBytes take the direct route; smaller ones take
// the relay. The threshold is fixed configuration, not negotiated at runtime.
type Storage struct {
	baseURL        string
	apiKey         string
	thresholdBytes int64
	client         *http.Client
}

func New(baseURL, apiKey string, thresholdBytes int64) *Storage {
	return &Storage{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		thresholdBytes: thresholdBytes,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Upload stores data remotely and returns its URL. The route is chosen from
// the payload size: len(data) >= threshold goes direct, otherwise relay.
func (s *Storage) Upload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	if int64(len(data)) >= s.thresholdBytes {
		log.Printf("[Storage] %s (%d bytes) at/above threshold %d — direct upload", fileName, len(data), s.thresholdBytes)
		return s.directUpload(ctx, data, fileName, contentType)
	}
	log.Printf("[Storage] %s (%d bytes) below threshold %d — relay upload", fileName, len(data), s.thresholdBytes)
	return s.relayUpload(ctx, data, fileName, contentType)
}

// UploadFile uploads a file from a local path. The returned URL is always
// remote — callers must never see local paths leak downstream.
func (s *Storage) UploadFile(ctx context.Context, localPath, fileName, contentType string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Upload(ctx, data, fileName, contentType)
}

// relayUpload POSTs the raw bytes through the fal gateway, which forwards them
// to object storage and returns the final URL.
func (s *Storage) relayUpload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	url := fmt.Sprintf("%s/storage/upload?file_name=%s", s.baseURL, fileName)

	body, status, err := s.doWithRetry(ctx, "relay", func(attemptCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(attemptCtx, "POST", url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Key "+s.apiKey)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", &UploadError{Path: "relay", StatusCode: status, Err: err}
	}

	var result struct {
		AccessURL string `json:"access_url"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &UploadError{Path: "relay", Err: fmt.Errorf("failed to parse upload response: %w", err)}
	}
	if result.AccessURL == "" {
		return "", &UploadError{Path: "relay", Err: fmt.Errorf("no access_url in upload response: %s", truncate(string(body), 200))}
	}

	return result.AccessURL, nil
}

// directUpload asks the gateway for a presigned destination, then PUTs the
// bytes straight to object storage. Used for payloads the relay would reject.
func (s *Storage) directUpload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	initiateURL := fmt.Sprintf("%s/storage/upload/initiate", s.baseURL)
	initiateBody, _ := json.Marshal(map[string]string{
		"file_name":    fileName,
		"content_type": contentType,
	})

	body, status, err := s.doWithRetry(ctx, "direct", func(attemptCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(attemptCtx, "POST", initiateURL, bytes.NewReader(initiateBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Key "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", &UploadError{Path: "direct", StatusCode: status, Err: fmt.Errorf("initiate failed: %w", err)}
	}

	var initiated struct {
		UploadURL string `json:"upload_url"`
		FileURL   string `json:"file_url"`
	}
	if err := json.Unmarshal(body, &initiated); err != nil {
		return "", &UploadError{Path: "direct", Err: fmt.Errorf("failed to parse initiate response: %w", err)}
	}
	if initiated.UploadURL == "" || initiated.FileURL == "" {
		return "", &UploadError{Path: "direct", Err: fmt.Errorf("incomplete initiate response: %s", truncate(string(body), 200))}
	}

	_, status, err = s.doWithRetry(ctx, "direct", func(attemptCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(attemptCtx, "PUT", initiated.UploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		// Presigned URL — no Authorization header, the signature covers it
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = int64(len(data))
		return req, nil
	})
	if err != nil {
		return "", &UploadError{Path: "direct", StatusCode: status, Err: fmt.Errorf("put failed: %w", err)}
	}

	return initiated.FileURL, nil
}

// GenerateObjectName builds a unique remote object name for an asset.
func GenerateObjectName(prefix, ext string) string {
	return fmt.Sprintf("%s-%s%s", prefix, uuid.New().String(), ext)
}

// doWithRetry executes a request with retries and exponential backoff.
// Returns the response body on 2xx, or the last error plus the last HTTP
// status (zero if the failure never reached the server).
func (s *Storage) doWithRetry(ctx context.Context, label string, build func(context.Context) (*http.Request, error)) ([]byte, int, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] %s retry %d/%d (waiting %v)...", label, attempt, maxRetries, delay)

			select {
			case <-ctx.Done():
				return nil, lastStatus, fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		// Each attempt gets its own generous timeout, independent of caller's ctx
		attemptCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := build(attemptCtx)
		if err != nil {
			cancel()
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			lastStatus = 0
			if isRetryableError(err) {
				log.Printf("[Storage] %s attempt %d failed (retryable): %v", label, attempt+1, err)
				continue
			}
			return nil, 0, lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if attempt > 0 {
				log.Printf("[Storage] %s succeeded on attempt %d", label, attempt+1)
			}
			return body, resp.StatusCode, nil
		}

		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
		lastStatus = resp.StatusCode

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] %s attempt %d returned status %d (retryable)", label, attempt+1, resp.StatusCode)
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return nil, lastStatus, lastErr
	}

	return nil, lastStatus, fmt.Errorf("after %d attempts: %w", maxRetries+1, lastErr)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
