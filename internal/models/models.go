package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type BatchStatus string

const (
	BatchStatusUploaded   BatchStatus = "uploaded"
	BatchStatusAnalyzing  BatchStatus = "analyzing"
	BatchStatusReady      BatchStatus = "ready"
	BatchStatusGenerating BatchStatus = "generating"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

type ClipStatus string

const (
	ClipStatusPending    ClipStatus = "pending"
	ClipStatusGenerating ClipStatus = "generating"
	ClipStatusCompleted  ClipStatus = "completed"
	ClipStatusFailed     ClipStatus = "failed"
)

// IsTerminal reports whether a clip has finished its run, successfully or not.
// Terminal clips never transition again within the same batch run.
func (s ClipStatus) IsTerminal() bool {
	return s == ClipStatusCompleted || s == ClipStatusFailed
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Models

// Batch owns the source assets for one generation run: the original video,
// the avatar reference image, and an optional product image. Assets are
// uploaded once and read-only for the lifetime of the batch.
type Batch struct {
	ID               uuid.UUID   `json:"id"`
	Status           BatchStatus `json:"status"`
	SourceVideoPath  string      `json:"source_video_path"`
	AvatarImagePath  string      `json:"avatar_image_path"`
	ProductImagePath *string     `json:"product_image_path,omitempty"`
	ProductName      *string     `json:"product_name,omitempty"`
	ErrorCode        *string     `json:"error_code,omitempty"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Clip is one time-bounded scene from the analysis pass, tracked through its
// own generation lifecycle. Clips are processed in clip_index order and are
// never deleted — failed clips stay visible with their error message.
type Clip struct {
	ID              uuid.UUID  `json:"id"`
	BatchID         uuid.UUID  `json:"batch_id"`
	ClipIndex       int        `json:"clip_index"`
	StartSeconds    float64    `json:"start_seconds"`
	EndSeconds      float64    `json:"end_seconds"`
	Description     string     `json:"description"`
	ContainsProduct bool       `json:"contains_product"`
	Status          ClipStatus `json:"status"`
	SegmentURL      *string    `json:"segment_url,omitempty"`
	ResultURL       *string    `json:"result_url,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	BatchID      uuid.UUID  `json:"batch_id"`
	ClipID       *uuid.UUID `json:"clip_id,omitempty"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Segment is one scene boundary returned by the video analysis pass.
type Segment struct {
	StartSeconds   float64 `json:"start_time_seconds"`
	EndSeconds     float64 `json:"end_time_seconds"`
	Description    string  `json:"description"`
	ProductVisible bool    `json:"product_visible"`
}

// DTOs for API responses

type BatchResponse struct {
	Batch
	Clips []Clip `json:"clips,omitempty"`
}

type CreateBatchResponse struct {
	BatchID uuid.UUID   `json:"batch_id"`
	Status  BatchStatus `json:"status"`
}

type EnqueueResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}
