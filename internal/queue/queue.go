package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueAnalyzeBatch  = "queue:analyze_batch"
	QueueGenerateBatch = "queue:generate_batch"
	QueueRetryClip     = "queue:retry_clip"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	BatchID   uuid.UUID  `json:"batch_id"`
	ClipID    *uuid.UUID `json:"clip_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueAnalyzeBatch enqueues a scene-analysis job for a batch
func (q *Queue) EnqueueAnalyzeBatch(ctx context.Context, batchID, jobID uuid.UUID) error {
	job := &Job{
		ID:      jobID,
		Type:    "analyze_batch",
		BatchID: batchID,
	}
	return q.Enqueue(ctx, QueueAnalyzeBatch, job)
}

// EnqueueGenerateBatch enqueues a generate-all run for a batch
func (q *Queue) EnqueueGenerateBatch(ctx context.Context, batchID, jobID uuid.UUID) error {
	job := &Job{
		ID:      jobID,
		Type:    "generate_batch",
		BatchID: batchID,
	}
	return q.Enqueue(ctx, QueueGenerateBatch, job)
}

// EnqueueRetryClip enqueues regeneration of a single failed clip
func (q *Queue) EnqueueRetryClip(ctx context.Context, batchID, clipID, jobID uuid.UUID) error {
	job := &Job{
		ID:      jobID,
		Type:    "retry_clip",
		BatchID: batchID,
		ClipID:  &clipID,
	}
	return q.Enqueue(ctx, QueueRetryClip, job)
}
