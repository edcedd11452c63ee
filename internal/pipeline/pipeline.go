package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
	"github.com/Willperez332/Wan-2.2-Automation/internal/services"
)

// ---------------------------------------------------------------------------
// Pipeline orchestrator
// Runs one batch end to end: resolve the avatar reference (compositing the
// product in when configured), then for each clip extract the source segment,
// upload the assets, submit the generation job, and poll it to a terminal
// state. Each clip succeeds or fails on its own — one bad clip never takes
// down the batch.
// ---------------------------------------------------------------------------

const (
	defaultClipSeconds = 5
	defaultAspectRatio = "9:16"
)

// Extractor cuts time-bounded segments out of a local source video.
type Extractor interface {
	ExtractSegment(ctx context.Context, sourcePath string, startSec, endSec float64) (string, error)
	Cleanup(paths ...string)
}

// Uploader moves local bytes into remote storage and returns their URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, contentType string) (string, error)
	UploadFile(ctx context.Context, localPath, fileName, contentType string) (string, error)
}

// JobClient drives a remote generation job: submit, then poll to terminal.
type JobClient interface {
	Submit(ctx context.Context, input services.GenerationInput) (string, error)
	PollUntilTerminal(ctx context.Context, requestID string) (string, error)
}

// Compositor edits the product into the avatar reference image.
type Compositor interface {
	CompositeProduct(ctx context.Context, avatarData []byte, avatarMime string, productData []byte, productMime string) ([]byte, error)
}

// PromptEnhancer rewrites a scene description into a richer prompt.
type PromptEnhancer interface {
	EnhancePrompt(ctx context.Context, description string) (string, error)
}

// Generator produces a clip directly from the avatar image and prompt,
// without a motion-source segment. Optional alternative to the JobClient.
type Generator interface {
	GenerateVideo(ctx context.Context, prompt string, imageData []byte, imageMimeType string) ([]byte, error)
}

// ClipUpdater is the slice of the database the pipeline writes through.
// Implemented by db.DB.
type ClipUpdater interface {
	UpdateClipStatus(ctx context.Context, id uuid.UUID, status models.ClipStatus) error
	UpdateClipSegmentURL(ctx context.Context, id uuid.UUID, url string) error
	UpdateClipResult(ctx context.Context, id uuid.UUID, resultURL string) error
	UpdateClipError(ctx context.Context, id uuid.UUID, errorMessage string) error
	ResetBatchClips(ctx context.Context, batchID uuid.UUID) error
}

// Config wires the orchestrator's collaborators. Compositor, Enhancer, and
// Generator are optional; everything else is required.
type Config struct {
	Extractor Extractor
	Uploader  Uploader
	Jobs      JobClient
	Clips     ClipUpdater

	Compositor Compositor
	Enhancer   PromptEnhancer
	Generator  Generator

	// ClipSeconds and AspectRatio are passed through to every generation
	// job. Zero values fall back to 5s / 9:16.
	ClipSeconds int
	AspectRatio string

	// MaxConcurrentClips bounds how many clips run at once within a batch.
	// Zero or negative means sequential.
	MaxConcurrentClips int
}

// Orchestrator runs batches through the generation pipeline.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	if cfg.ClipSeconds <= 0 {
		cfg.ClipSeconds = defaultClipSeconds
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = defaultAspectRatio
	}
	if cfg.MaxConcurrentClips <= 0 {
		cfg.MaxConcurrentClips = 1
	}
	return &Orchestrator{cfg: cfg}
}

// avatarContext is the resolved avatar reference shared by every clip of a
// batch run: the uploaded image URL plus the raw bytes for generators that
// take images inline.
type avatarContext struct {
	url  string
	data []byte
	mime string

	// compositeFailed means the product could not be edited into the
	// avatar. Clips that show the product compensate in the prompt.
	compositeFailed bool
	productName     string
}

// RunResult summarizes one batch run.
type RunResult struct {
	Completed int
	Failed    int
}

// Run drives every clip of a batch to a terminal state. Missing source assets
// are batch-fatal and returned as an error; everything past that point is
// per-clip, recorded on the clip and counted in the result.
//
// Clips are reset to pending up front, so a re-run behaves identically
// regardless of prior outcomes.
func (o *Orchestrator) Run(ctx context.Context, batch *models.Batch, clips []models.Clip) (*RunResult, error) {
	if err := checkAsset("source video", batch.SourceVideoPath); err != nil {
		return nil, err
	}
	if err := checkAsset("avatar image", batch.AvatarImagePath); err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("batch %s has no clips to generate", batch.ID)
	}

	if err := o.cfg.Clips.ResetBatchClips(ctx, batch.ID); err != nil {
		return nil, fmt.Errorf("failed to reset clips: %w", err)
	}

	avatar, err := o.resolveAvatar(ctx, batch)
	if err != nil {
		return nil, err
	}

	log.Printf("[Pipeline] Batch %s: generating %d clips (concurrency %d)", batch.ID, len(clips), o.cfg.MaxConcurrentClips)

	results := make([]bool, len(clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrentClips)

	for i := range clips {
		i := i
		clip := clips[i]
		g.Go(func() error {
			ok := o.processClip(gctx, batch, &clip, avatar)
			results[i] = ok
			// Per-clip failures are recorded, never propagated — only
			// cancellation stops the batch.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch run interrupted: %w", err)
	}

	res := &RunResult{}
	for _, ok := range results {
		if ok {
			res.Completed++
		} else {
			res.Failed++
		}
	}

	log.Printf("[Pipeline] Batch %s done: %d completed, %d failed", batch.ID, res.Completed, res.Failed)
	return res, nil
}

// RunClip re-runs a single clip with the same semantics as a full batch run,
// including avatar resolution. Used by selective retry.
func (o *Orchestrator) RunClip(ctx context.Context, batch *models.Batch, clip *models.Clip) error {
	if err := checkAsset("source video", batch.SourceVideoPath); err != nil {
		return err
	}
	if err := checkAsset("avatar image", batch.AvatarImagePath); err != nil {
		return err
	}

	avatar, err := o.resolveAvatar(ctx, batch)
	if err != nil {
		return err
	}

	o.processClip(ctx, batch, clip, avatar)
	return nil
}

// resolveAvatar loads the avatar reference, composites the product in when
// the batch has one, and uploads the final image once for the whole run.
//
// Composite failure is degradable: the plain avatar is used and clips that
// show the product lean on the prompt instead.
func (o *Orchestrator) resolveAvatar(ctx context.Context, batch *models.Batch) (*avatarContext, error) {
	avatarData, err := os.ReadFile(batch.AvatarImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read avatar image: %w", err)
	}
	avatarMime := imageMimeType(batch.AvatarImagePath)

	avatar := &avatarContext{data: avatarData, mime: avatarMime}

	if batch.ProductImagePath != nil && *batch.ProductImagePath != "" && o.cfg.Compositor != nil {
		productData, err := os.ReadFile(*batch.ProductImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read product image: %w", err)
		}

		composited, err := o.cfg.Compositor.CompositeProduct(ctx, avatarData, avatarMime, productData, imageMimeType(*batch.ProductImagePath))
		if err != nil {
			// Degrade: plain avatar, product carried in the prompt
			log.Printf("[Pipeline] Batch %s: product composite failed, falling back to plain avatar: %v", batch.ID, err)
			avatar.compositeFailed = true
			if batch.ProductName != nil {
				avatar.productName = *batch.ProductName
			}
		} else {
			avatar.data = composited
			avatar.mime = "image/png"
		}
	}

	name := fmt.Sprintf("avatar-%s%s", batch.ID, extForMime(avatar.mime))
	url, err := o.cfg.Uploader.Upload(ctx, avatar.data, name, avatar.mime)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar reference: %w", err)
	}
	avatar.url = url

	return avatar, nil
}

// processClip takes one clip from pending to a terminal state. Returns true
// on completed, false on failed. All failures are recorded on the clip row;
// this function never returns an error.
func (o *Orchestrator) processClip(ctx context.Context, batch *models.Batch, clip *models.Clip, avatar *avatarContext) bool {
	if err := o.cfg.Clips.UpdateClipStatus(ctx, clip.ID, models.ClipStatusGenerating); err != nil {
		log.Printf("[Pipeline] Clip %d: failed to mark generating: %v", clip.ClipIndex, err)
	}

	resultURL, err := o.generateClip(ctx, batch, clip, avatar)
	if err != nil {
		log.Printf("[Pipeline] Clip %d failed: %v", clip.ClipIndex, err)
		if dbErr := o.cfg.Clips.UpdateClipError(ctx, clip.ID, err.Error()); dbErr != nil {
			log.Printf("[Pipeline] Clip %d: failed to record error: %v", clip.ClipIndex, dbErr)
		}
		return false
	}

	if err := o.cfg.Clips.UpdateClipResult(ctx, clip.ID, resultURL); err != nil {
		log.Printf("[Pipeline] Clip %d: failed to record result: %v", clip.ClipIndex, err)
		return false
	}

	log.Printf("[Pipeline] Clip %d completed: %s", clip.ClipIndex, resultURL)
	return true
}

// generateClip does the actual work for one clip: cut, upload, submit, poll.
func (o *Orchestrator) generateClip(ctx context.Context, batch *models.Batch, clip *models.Clip, avatar *avatarContext) (string, error) {
	prompt := o.buildPrompt(ctx, clip, avatar)

	// Direct generator path: no segment, the avatar image drives the motion
	if o.cfg.Generator != nil {
		videoBytes, err := o.cfg.Generator.GenerateVideo(ctx, prompt, avatar.data, avatar.mime)
		if err != nil {
			return "", err
		}
		name := fmt.Sprintf("result-%s.mp4", clip.ID)
		return o.cfg.Uploader.Upload(ctx, videoBytes, name, "video/mp4")
	}

	segmentPath, err := o.cfg.Extractor.ExtractSegment(ctx, batch.SourceVideoPath, clip.StartSeconds, clip.EndSeconds)
	if err != nil {
		return "", err
	}
	defer o.cfg.Extractor.Cleanup(segmentPath)

	segmentName := fmt.Sprintf("segment-%s.mp4", clip.ID)
	segmentURL, err := o.cfg.Uploader.UploadFile(ctx, segmentPath, segmentName, "video/mp4")
	if err != nil {
		return "", err
	}

	if err := o.cfg.Clips.UpdateClipSegmentURL(ctx, clip.ID, segmentURL); err != nil {
		log.Printf("[Pipeline] Clip %d: failed to record segment URL: %v", clip.ClipIndex, err)
	}

	requestID, err := o.cfg.Jobs.Submit(ctx, services.GenerationInput{
		Prompt:      prompt,
		ImageURL:    avatar.url,
		VideoURL:    segmentURL,
		Seconds:     o.cfg.ClipSeconds,
		AspectRatio: o.cfg.AspectRatio,
	})
	if err != nil {
		return "", err
	}

	return o.cfg.Jobs.PollUntilTerminal(ctx, requestID)
}

// buildPrompt turns the clip description into the generation prompt. When the
// product composite failed and this clip shows the product, the product name
// is folded into the description so the model still renders it.
func (o *Orchestrator) buildPrompt(ctx context.Context, clip *models.Clip, avatar *avatarContext) string {
	description := clip.Description
	if avatar.compositeFailed && clip.ContainsProduct && avatar.productName != "" {
		description = fmt.Sprintf("%s The person is holding and presenting %s.", description, avatar.productName)
	}

	if o.cfg.Enhancer != nil {
		enhanced, err := o.cfg.Enhancer.EnhancePrompt(ctx, description)
		if err == nil {
			return enhanced
		}
		log.Printf("[Pipeline] Clip %d: prompt enhancement failed, using basic prompt: %v", clip.ClipIndex, err)
	}

	return services.BuildBasicPrompt(description)
}

func checkAsset(label, path string) error {
	if path == "" {
		return fmt.Errorf("batch has no %s", label)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s not accessible at %s: %w", label, path, err)
	}
	return nil
}

func imageMimeType(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func extForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
