package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// fal.ai queue client
// Drives Wan 2.2 animate/move generations through fal's deferred request
// pattern: submit generation → poll by request_id → fetch result payload.
// ---------------------------------------------------------------------------

const (
	defaultPollInterval         = 3 * time.Second
	defaultPollTimeout          = 10 * time.Minute
	defaultMaxTransportFailures = 5
)

// SubmissionError means the remote service rejected the job at enqueue time,
// e.g. malformed input. Nothing was queued.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected (status %d): %s", e.StatusCode, e.Message)
}

// RemoteJobError is a terminal failure reported by the remote compute
// service. Message carries the remote error text verbatim.
type RemoteJobError struct {
	RequestID string
	Message   string
}

func (e *RemoteJobError) Error() string {
	return fmt.Sprintf("remote job %s failed: %s", e.RequestID, e.Message)
}

// TransportError means polling could not reach the service for too many
// consecutive attempts. The job itself may still be running remotely.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed %d consecutive times: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GenerationInput is the structured payload for one Wan animate/move job:
// the avatar reference image, the motion-source video segment, and the scene
// description as the prompt.
type GenerationInput struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	Seconds     int    `json:"seconds,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// falSubmitResponse is the body of POST /{model} on the queue API.
type falSubmitResponse struct {
	RequestID string `json:"request_id"`
}

// falStatusResponse is the unified poll response.
//
// fal returns different shapes depending on state:
//   - Queued:      {"status":"IN_QUEUE","queue_position":3}
//   - In progress: {"status":"IN_PROGRESS","logs":[...]}
//   - Completed:   {"status":"COMPLETED"} — result fetched separately, though
//     some deployments embed {"video":{"url":"..."}} directly
//   - Failed:      {"status":"FAILED","error":"..."}
type falStatusResponse struct {
	Status        string          `json:"status"`
	QueuePosition int             `json:"queue_position,omitempty"`
	Error         string          `json:"error,omitempty"`
	Video         *falVideoOutput `json:"video,omitempty"`
	Logs          []falLogLine    `json:"logs,omitempty"`
}

type falLogLine struct {
	Message string `json:"message"`
}

// falResultResponse is the result payload fetched after COMPLETED.
type falResultResponse struct {
	Video  *falVideoOutput `json:"video,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

type falVideoOutput struct {
	URL string `json:"url"`
}

// FalClientConfig carries the tunables for polling behavior. Zero values fall
// back to the package defaults.
type FalClientConfig struct {
	APIKey               string
	BaseURL              string // Queue API base, e.g. https://queue.fal.run
	Model                string // e.g. fal-ai/wan/v2.2-14b/animate/move
	PollInterval         time.Duration
	PollTimeout          time.Duration
	MaxTransportFailures int
}

// FalClient submits generation jobs and polls them to a terminal state.
type FalClient struct {
	apiKey               string
	baseURL              string
	model                string
	pollInterval         time.Duration
	pollTimeout          time.Duration
	maxTransportFailures int
	httpClient           *http.Client
}

func NewFalClient(cfg FalClientConfig) *FalClient {
	c := &FalClient{
		apiKey:               cfg.APIKey,
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		model:                cfg.Model,
		pollInterval:         cfg.PollInterval,
		pollTimeout:          cfg.PollTimeout,
		maxTransportFailures: cfg.MaxTransportFailures,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Per-call timeout, not the full poll cycle
		},
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = defaultPollTimeout
	}
	if c.maxTransportFailures <= 0 {
		c.maxTransportFailures = defaultMaxTransportFailures
	}
	return c
}

// Submit enqueues a generation job and returns the opaque request id.
// Fire-and-forget: the job runs remotely, progress comes from polling.
func (c *FalClient) Submit(ctx context.Context, input GenerationInput) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read submit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: truncateBody(string(body))}
	}

	var submitResp falSubmitResponse
	if err := json.Unmarshal(body, &submitResp); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w (body: %s)", err, truncateBody(string(body)))
	}

	if submitResp.RequestID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: "no request_id in response: " + truncateBody(string(body))}
	}

	log.Printf("[Fal] Generation submitted, request_id=%s", submitResp.RequestID)
	return submitResp.RequestID, nil
}

// PollUntilTerminal polls the request until it completes or fails and returns
// the result video URL.
//
// IN_QUEUE and IN_PROGRESS keep polling at a fixed interval. COMPLETED
// returns the embedded result URL, or fetches the result payload when the
// status response doesn't embed it. A failure status surfaces the remote
// message as a RemoteJobError.
//
// Transient transport errors don't fail the job: the poll waits and tries
// again, up to maxTransportFailures consecutive misses. The whole loop is
// bounded by pollTimeout.
func (c *FalClient) PollUntilTerminal(ctx context.Context, requestID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	pollCount := 0
	transportFailures := 0

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("generation timed out after %v (polled %d times, request_id=%s)", c.pollTimeout, pollCount, requestID)
		}

		pollCount++

		status, err := c.getStatus(ctx, requestID)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("polling cancelled: %w", ctx.Err())
			}
			transportFailures++
			if transportFailures >= c.maxTransportFailures {
				return "", &TransportError{Attempts: transportFailures, Err: err}
			}
			log.Printf("[Fal] Poll %d transport error (%d/%d consecutive): %v", pollCount, transportFailures, c.maxTransportFailures, err)
			if err := c.wait(ctx); err != nil {
				return "", err
			}
			continue
		}
		transportFailures = 0

		for _, line := range status.Logs {
			if line.Message != "" {
				log.Printf("[Fal] %s", line.Message)
			}
		}

		switch status.Status {
		case "COMPLETED":
			// Some responses embed the result; otherwise fetch it
			if status.Video != nil && status.Video.URL != "" {
				log.Printf("[Fal] Poll %d: completed (embedded result)", pollCount)
				return status.Video.URL, nil
			}
			log.Printf("[Fal] Poll %d: completed, fetching result...", pollCount)
			return c.fetchResult(ctx, requestID)

		case "FAILED", "ERROR", "CANCELLED":
			errMsg := status.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			return "", &RemoteJobError{RequestID: requestID, Message: errMsg}

		case "IN_QUEUE", "IN_PROGRESS", "":
			if status.QueuePosition > 0 {
				log.Printf("[Fal] Poll %d: %s (queue position %d)", pollCount, status.Status, status.QueuePosition)
			} else {
				log.Printf("[Fal] Poll %d: %s", pollCount, status.Status)
			}
			if err := c.wait(ctx); err != nil {
				return "", err
			}

		default:
			return "", fmt.Errorf("unexpected job status %q (request_id=%s)", status.Status, requestID)
		}
	}
}

func (c *FalClient) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("polling cancelled: %w", ctx.Err())
	case <-time.After(c.pollInterval):
		return nil
	}
}

// getStatus fetches the current state of a queued request.
func (c *FalClient) getStatus(ctx context.Context, requestID string) (*falStatusResponse, error) {
	url := fmt.Sprintf("%s/%s/requests/%s/status?logs=1", c.baseURL, c.model, requestID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	// 202 is returned while the request is still queued
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("status returned %d: %s", resp.StatusCode, truncateBody(string(body)))
	}

	var status falStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w (body: %s)", err, truncateBody(string(body)))
	}

	return &status, nil
}

// fetchResult retrieves the result payload of a completed request and
// extracts the generated video URL.
func (c *FalClient) fetchResult(ctx context.Context, requestID string) (string, error) {
	url := fmt.Sprintf("%s/%s/requests/%s", c.baseURL, c.model, requestID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("result request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read result response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &RemoteJobError{RequestID: requestID, Message: fmt.Sprintf("result fetch returned %d: %s", resp.StatusCode, truncateBody(string(body)))}
	}

	var result falResultResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse result response: %w (body: %s)", err, truncateBody(string(body)))
	}

	if result.Video == nil || result.Video.URL == "" {
		return "", &RemoteJobError{RequestID: requestID, Message: "no video URL in result: " + truncateBody(string(body))}
	}

	return result.Video.URL, nil
}

func truncateBody(s string) string {
	const maxLen = 300
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
