package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Willperez332/Wan-2.2-Automation/internal/db"
	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
	"github.com/Willperez332/Wan-2.2-Automation/internal/pipeline"
	"github.com/Willperez332/Wan-2.2-Automation/internal/queue"
	"github.com/Willperez332/Wan-2.2-Automation/internal/services"
)

// Worker drains the job queues and drives batches through analysis and
// generation. It runs in-process with the API server.
type Worker struct {
	db       *db.DB
	queue    *queue.Queue
	gemini   *services.GeminiService
	pipeline *pipeline.Orchestrator
}

func New(
	database *db.DB,
	q *queue.Queue,
	geminiSvc *services.GeminiService,
	orch *pipeline.Orchestrator,
) *Worker {
	return &Worker{
		db:       database,
		queue:    q,
		gemini:   geminiSvc,
		pipeline: orch,
	}
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	// Start workers for each queue type
	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueAnalyzeBatch, w.handleAnalyzeBatch)
		go w.processQueue(ctx, queue.QueueGenerateBatch, w.handleGenerateBatch)
		go w.processQueue(ctx, queue.QueueRetryClip, w.handleRetryClip)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, batch: %s)", job.ID, job.Type, job.BatchID)

			// Update job status to running
			if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
				log.Printf("Failed to update job status: %v", err)
			}

			// Handle the job
			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				w.db.UpdateJobError(ctx, job.ID, err.Error())
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded)
			}
		}
	}
}

// handleAnalyzeBatch runs the scene analysis pass over the batch's source
// video and replaces the batch's clips with one row per detected segment.
func (w *Worker) handleAnalyzeBatch(ctx context.Context, job *queue.Job) error {
	log.Printf("Analyzing batch %s", job.BatchID)

	batch, err := w.db.GetBatch(ctx, job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}

	if err := w.db.UpdateBatchStatus(ctx, batch.ID, models.BatchStatusAnalyzing); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	segments, err := w.gemini.AnalyzeVideo(ctx, batch.SourceVideoPath)
	if err != nil {
		w.db.UpdateBatchError(ctx, batch.ID, "analysis_failed", err.Error())
		return fmt.Errorf("analysis failed: %w", err)
	}

	// Re-analysis replaces any prior clip set wholesale
	if err := w.db.DeleteBatchClips(ctx, batch.ID); err != nil {
		return fmt.Errorf("failed to clear old clips: %w", err)
	}

	for i, seg := range segments {
		clip := &models.Clip{
			ID:              uuid.New(),
			BatchID:         batch.ID,
			ClipIndex:       i,
			StartSeconds:    seg.StartSeconds,
			EndSeconds:      seg.EndSeconds,
			Description:     seg.Description,
			ContainsProduct: seg.ProductVisible,
			Status:          models.ClipStatusPending,
		}
		if err := w.db.CreateClip(ctx, clip); err != nil {
			return fmt.Errorf("failed to create clip %d: %w", i, err)
		}
	}

	if err := w.db.UpdateBatchStatus(ctx, batch.ID, models.BatchStatusReady); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	log.Printf("Batch %s analyzed: %d clips", batch.ID, len(segments))
	return nil
}

// handleGenerateBatch runs the full generation pipeline over every clip of
// the batch. Per-clip failures are recorded on the clips; only batch-level
// problems (missing assets, no clips) fail the batch itself.
func (w *Worker) handleGenerateBatch(ctx context.Context, job *queue.Job) error {
	log.Printf("Generating batch %s", job.BatchID)

	batch, err := w.db.GetBatch(ctx, job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}

	clips, err := w.db.GetBatchClips(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("failed to get clips: %w", err)
	}

	if err := w.db.UpdateBatchStatus(ctx, batch.ID, models.BatchStatusGenerating); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	result, err := w.pipeline.Run(ctx, batch, clips)
	if err != nil {
		w.db.UpdateBatchError(ctx, batch.ID, "generation_failed", err.Error())
		return fmt.Errorf("batch run failed: %w", err)
	}

	// The batch completes even when individual clips failed — the failures
	// stay visible on the clip rows.
	if err := w.db.UpdateBatchStatus(ctx, batch.ID, models.BatchStatusCompleted); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	log.Printf("Batch %s generation done: %d completed, %d failed", batch.ID, result.Completed, result.Failed)
	return nil
}

// handleRetryClip regenerates a single clip without touching its siblings.
func (w *Worker) handleRetryClip(ctx context.Context, job *queue.Job) error {
	if job.ClipID == nil {
		return fmt.Errorf("retry_clip job %s has no clip id", job.ID)
	}

	log.Printf("Retrying clip %s (batch %s)", *job.ClipID, job.BatchID)

	batch, err := w.db.GetBatch(ctx, job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}

	clip, err := w.db.GetClip(ctx, *job.ClipID)
	if err != nil {
		return fmt.Errorf("failed to get clip: %w", err)
	}

	if clip.BatchID != batch.ID {
		return fmt.Errorf("clip %s does not belong to batch %s", clip.ID, batch.ID)
	}

	// Back to pending first so observers see a clean re-run
	if err := w.db.UpdateClipStatus(ctx, clip.ID, models.ClipStatusPending); err != nil {
		return fmt.Errorf("failed to reset clip: %w", err)
	}

	if err := w.pipeline.RunClip(ctx, batch, clip); err != nil {
		w.db.UpdateClipError(ctx, clip.ID, err.Error())
		return fmt.Errorf("clip retry failed: %w", err)
	}

	return nil
}
