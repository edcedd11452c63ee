package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Willperez332/Wan-2.2-Automation/internal/db"
	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
	"github.com/Willperez332/Wan-2.2-Automation/internal/queue"
)

type Handler struct {
	db            *db.DB
	queue         *queue.Queue
	uploadDir     string
	maxUploadSize int64
}

func NewHandler(database *db.DB, q *queue.Queue, uploadDir string, maxUploadSize int64) *Handler {
	return &Handler{
		db:            database,
		queue:         q,
		uploadDir:     uploadDir,
		maxUploadSize: maxUploadSize,
	}
}

// CreateBatch handles POST /v1/batches
//
// Multipart form:
//   - video:        required, the source video to segment
//   - avatar:       required, the avatar reference image
//   - product:      optional, product image to composite onto the avatar
//   - product_name: optional, used in prompts when compositing degrades
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid or oversized multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	batchID := uuid.New()
	batchDir := filepath.Join(h.uploadDir, batchID.String())
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to prepare upload directory")
		return
	}

	videoPath, err := h.saveFormFile(r, "video", batchDir)
	if err != nil {
		os.RemoveAll(batchDir)
		respondError(w, http.StatusBadRequest, "Source video is required: "+err.Error())
		return
	}

	avatarPath, err := h.saveFormFile(r, "avatar", batchDir)
	if err != nil {
		os.RemoveAll(batchDir)
		respondError(w, http.StatusBadRequest, "Avatar image is required: "+err.Error())
		return
	}

	batch := &models.Batch{
		ID:              batchID,
		Status:          models.BatchStatusUploaded,
		SourceVideoPath: videoPath,
		AvatarImagePath: avatarPath,
	}

	// Product assets are optional — a batch without them generates plain
	// avatar clips
	if productPath, err := h.saveFormFile(r, "product", batchDir); err == nil {
		batch.ProductImagePath = &productPath
	}
	if name := strings.TrimSpace(r.FormValue("product_name")); name != "" {
		batch.ProductName = &name
	}

	if err := h.db.CreateBatch(r.Context(), batch); err != nil {
		os.RemoveAll(batchDir)
		respondError(w, http.StatusInternalServerError, "Failed to create batch")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateBatchResponse{
		BatchID: batch.ID,
		Status:  batch.Status,
	})
}

// AnalyzeBatch handles POST /v1/batches/{id}/analyze
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:      jobID,
		BatchID: batch.ID,
		Type:    "analyze_batch",
		Status:  models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueAnalyzeBatch(r.Context(), batch.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueueResponse{
		JobID:  jobID,
		Status: models.JobStatusQueued,
	})
}

// GenerateBatch handles POST /v1/batches/{id}/generate
func (h *Handler) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	clips, err := h.db.GetBatchClips(r.Context(), batch.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get clips")
		return
	}
	if len(clips) == 0 {
		respondError(w, http.StatusConflict, "Batch has no clips — run analysis first")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:      jobID,
		BatchID: batch.ID,
		Type:    "generate_batch",
		Status:  models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateBatch(r.Context(), batch.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueueResponse{
		JobID:  jobID,
		Status: models.JobStatusQueued,
	})
}

// RetryClip handles POST /v1/batches/{id}/clips/{clipId}/retry
// Regenerates one clip; siblings keep their current state.
func (h *Handler) RetryClip(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	clipID, err := uuid.Parse(chi.URLParam(r, "clipId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}

	clip, err := h.db.GetClip(r.Context(), clipID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}
	if clip.BatchID != batch.ID {
		respondError(w, http.StatusNotFound, "Clip not found in this batch")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:      jobID,
		BatchID: batch.ID,
		ClipID:  &clipID,
		Type:    "retry_clip",
		Status:  models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueRetryClip(r.Context(), batch.ID, clipID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueueResponse{
		JobID:  jobID,
		Status: models.JobStatusQueued,
	})
}

// GetBatch handles GET /v1/batches/{id}
// Returns the batch with its full clip list, in clip order.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	clips, err := h.db.GetBatchClips(r.Context(), batch.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get clips")
		return
	}

	respondJSON(w, http.StatusOK, models.BatchResponse{
		Batch: *batch,
		Clips: clips,
	})
}

// GetBatchJobs handles GET /v1/batches/{id}/debug/jobs
func (h *Handler) GetBatchJobs(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	jobs, err := h.db.GetBatchJobs(r.Context(), batch.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadBatch resolves the {id} URL param to a batch, writing the error
// response itself when it can't.
func (h *Handler) loadBatch(w http.ResponseWriter, r *http.Request) (*models.Batch, bool) {
	batchID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid batch ID")
		return nil, false
	}

	batch, err := h.db.GetBatch(r.Context(), batchID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return nil, false
	}

	return batch, true
}

// saveFormFile writes one multipart file field to disk and returns its path.
func (h *Handler) saveFormFile(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing %s field", field)
	}
	defer file.Close()

	dst := filepath.Join(dir, field+sanitizeExt(header))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}

	return dst, nil
}

// sanitizeExt keeps only the uploaded file's extension — the base name is
// replaced with the field name, so client-controlled names never hit disk.
func sanitizeExt(header *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
